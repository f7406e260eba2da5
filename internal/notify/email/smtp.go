// Package email delivers verification codes by mail.
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

const defaultSubject = "Your verification code"

// SMTPSender submits a plain-text code message to an SMTP relay.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string

	// sendMail is smtp.SendMail; replaced in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	nowF     func() time.Time
}

// NewSMTPSender returns a sender for host:port. Auth is used only when username is set.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		Subject:  defaultSubject,
		sendMail: smtp.SendMail,
		nowF:     time.Now,
	}
}

// Send mails code to the address to.
func (s *SMTPSender) Send(ctx context.Context, to, code string) error {
	if s.Host == "" || s.From == "" {
		return fmt.Errorf("email: SMTP host or sender not configured")
	}
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("email: invalid recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	addr := net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
	if err := s.sendMail(addr, auth, s.From, []string{to}, s.message(to, code)); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(to, code string) []byte {
	subject := s.Subject
	if subject == "" {
		subject = defaultSubject
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", s.nowF().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Your verification code is %s. It expires in 5 minutes.\r\n", code)
	b.WriteString("If you did not request this code, you can ignore this message.\r\n")
	return []byte(b.String())
}
