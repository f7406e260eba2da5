package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

type capturedMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestSender(capture *capturedMail, err error) *SMTPSender {
	s := NewSMTPSender("smtp.test", 587, "", "", "no-reply@booking.test")
	s.nowF = func() time.Time { return time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC) }
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*capture = capturedMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)}
		return err
	}
	return s
}

func TestSend(t *testing.T) {
	var got capturedMail
	s := newTestSender(&got, nil)
	if err := s.Send(context.Background(), "guest@example.com", "482913"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.addr != "smtp.test:587" {
		t.Errorf("addr = %q", got.addr)
	}
	if got.auth != nil {
		t.Error("auth should be nil without a username")
	}
	if got.from != "no-reply@booking.test" || len(got.to) != 1 || got.to[0] != "guest@example.com" {
		t.Errorf("envelope = %q -> %v", got.from, got.to)
	}
	for _, want := range []string{"To: guest@example.com\r\n", "Subject: Your verification code\r\n", "482913"} {
		if !strings.Contains(got.msg, want) {
			t.Errorf("message missing %q:\n%s", want, got.msg)
		}
	}
}

func TestSend_UsesAuthWhenConfigured(t *testing.T) {
	var got capturedMail
	s := newTestSender(&got, nil)
	s.Username, s.Password = "user", "pass"
	if err := s.Send(context.Background(), "guest@example.com", "111111"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.auth == nil {
		t.Error("auth should be set when a username is configured")
	}
}

func TestSend_Errors(t *testing.T) {
	var got capturedMail
	relayErr := errors.New("relay refused")

	tests := []struct {
		name   string
		mutate func(*SMTPSender)
		to     string
		ctx    func() context.Context
		wantIs error
	}{
		{name: "not configured", mutate: func(s *SMTPSender) { s.Host = "" }, to: "a@b.c"},
		{name: "header injection", to: "a@b.c\r\nBcc: x@y.z"},
		{name: "relay failure", mutate: func(s *SMTPSender) {
			s.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return relayErr }
		}, to: "a@b.c", wantIs: relayErr},
		{name: "cancelled", to: "a@b.c", ctx: func() context.Context {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx
		}, wantIs: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSender(&got, nil)
			if tt.mutate != nil {
				tt.mutate(s)
			}
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}
			err := s.Send(ctx, tt.to, "123456")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("err = %v, want %v", err, tt.wantIs)
			}
		})
	}
}
