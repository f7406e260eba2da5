// Package service runs the verification flow: issue and deliver a code, verify it, and mint a session in the
// requested context. It also exposes the session operations downstream booking handlers use.
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"booking-gate/backend/internal/notify"
	"booking-gate/backend/internal/otp"
	otpdomain "booking-gate/backend/internal/otp/domain"
	"booking-gate/backend/internal/policy/engine"
	sessiondomain "booking-gate/backend/internal/session/domain"
	sessionservice "booking-gate/backend/internal/session/service"
	"booking-gate/backend/internal/telemetry"
	telemetrydomain "booking-gate/backend/internal/telemetry/domain"
)

const eventSource = "verification"

var (
	ErrInvalidIdentifier = errors.New("identifier must be a phone number or email address")
	ErrRateLimited       = errors.New("please wait before requesting another code")
	ErrDeliveryFailed    = errors.New("could not deliver the code, try again")
	ErrInvalidOrExpired  = errors.New("invalid or expired code")
	ErrUnknownContext    = errors.New("unknown session context")
	// ErrSessionNotFound covers absent, expired, and (for promotion) already-linked sessions.
	ErrSessionNotFound = errors.New("session not found or expired")
)

// Deliverer sends a code over the transport for method.
type Deliverer interface {
	Deliver(ctx context.Context, method otpdomain.Method, to, code string) error
}

// IdentityResolver maps a verified identifier to an external identity ID, or nil when unknown.
type IdentityResolver interface {
	Resolve(ctx context.Context, identifier string, method otpdomain.Method) (*string, error)
}

// CodeRequest describes an issued code without revealing it.
type CodeRequest struct {
	Identifier string
	Method     otpdomain.Method
	ExpiresAt  time.Time
}

// Service orchestrates OTP issuance, delivery, verification, and session minting.
type Service struct {
	otp      *otp.Service
	sessions *sessionservice.Registry
	delivery Deliverer
	resolver IdentityResolver
	policy   engine.Evaluator
	emitter  telemetry.EventEmitter
}

// NewService wires the flow. resolver, policy, and emitter may be nil: sessions then mint without identity,
// Authorize denies everything, and no events are emitted.
func NewService(
	otpSvc *otp.Service,
	sessions *sessionservice.Registry,
	delivery Deliverer,
	resolver IdentityResolver,
	policy engine.Evaluator,
	emitter telemetry.EventEmitter,
) *Service {
	return &Service{
		otp:      otpSvc,
		sessions: sessions,
		delivery: delivery,
		resolver: resolver,
		policy:   policy,
		emitter:  emitter,
	}
}

// RequestCode issues a code for identifier and waits for its delivery. A failed delivery discards the code
// so the caller can retry without waiting out the rate window.
func (s *Service) RequestCode(ctx context.Context, identifier string) (*CodeRequest, error) {
	issued, err := s.otp.Create(identifier)
	if errors.Is(err, otp.ErrInvalidIdentifier) {
		return nil, ErrInvalidIdentifier
	}
	if err != nil {
		return nil, err
	}
	if issued.Status == otp.StatusRateLimited {
		s.emit(telemetrydomain.TypeOTPRateLimited, "", issued.Identifier, issued.Method, nil)
		return nil, ErrRateLimited
	}
	if err := s.delivery.Deliver(ctx, issued.Method, issued.Identifier, issued.Code); err != nil {
		log.Printf("verification: deliver %s code to %s: %v", issued.Method, notify.Mask(issued.Identifier), err)
		s.otp.Discard(issued.Identifier)
		s.emit(telemetrydomain.TypeDeliveryFailed, "", issued.Identifier, issued.Method, map[string]string{"error": err.Error()})
		return nil, ErrDeliveryFailed
	}
	s.emit(telemetrydomain.TypeOTPIssued, "", issued.Identifier, issued.Method, nil)
	return &CodeRequest{Identifier: issued.Identifier, Method: issued.Method, ExpiresAt: issued.ExpiresAt}, nil
}

// VerifyCode checks code for identifier and, on success, mints a session in context c. Every verification
// failure is reported as ErrInvalidOrExpired. Identity lookup is best-effort and never blocks the session.
func (s *Service) VerifyCode(ctx context.Context, c sessiondomain.Context, identifier, code string) (*sessiondomain.Session, error) {
	sessions, ok := s.sessions.Get(c)
	if !ok {
		return nil, ErrUnknownContext
	}
	v := s.otp.Verify(identifier, code)
	if !v.OK() {
		s.emit(telemetrydomain.TypeOTPRejected, c, v.Identifier, v.Method, map[string]string{"reason": string(v.Reason)})
		return nil, ErrInvalidOrExpired
	}
	s.emit(telemetrydomain.TypeOTPVerified, c, v.Identifier, v.Method, nil)

	identityID := s.resolve(ctx, v.Identifier, v.Method)
	sess, err := sessions.Mint(v.Identifier, v.Method, identityID)
	if err != nil {
		return nil, err
	}
	s.emit(telemetrydomain.TypeSessionMinted, c, v.Identifier, v.Method, map[string]bool{"has_identity": sess.HasIdentity()})
	return sess, nil
}

// Session returns the live session for token in context c.
func (s *Service) Session(_ context.Context, c sessiondomain.Context, token string) (*sessiondomain.Session, error) {
	sessions, ok := s.sessions.Get(c)
	if !ok {
		return nil, ErrUnknownContext
	}
	sess, ok := sessions.Get(token)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// PromoteIdentity links identityID to the session once a booking has resolved the customer.
func (s *Service) PromoteIdentity(_ context.Context, c sessiondomain.Context, token, identityID string) error {
	sessions, ok := s.sessions.Get(c)
	if !ok {
		return ErrUnknownContext
	}
	if !sessions.UpdateIdentity(token, identityID) {
		return ErrSessionNotFound
	}
	s.emit(telemetrydomain.TypeSessionPromoted, c, "", "", nil)
	return nil
}

// Logout clears the session for token. Unknown tokens are not an error.
func (s *Service) Logout(_ context.Context, c sessiondomain.Context, token string) error {
	sessions, ok := s.sessions.Get(c)
	if !ok {
		return ErrUnknownContext
	}
	sessions.Clear(token)
	s.emit(telemetrydomain.TypeSessionCleared, c, "", "", nil)
	return nil
}

// Authorize asks the access policy whether the session for token may perform action.
func (s *Service) Authorize(ctx context.Context, c sessiondomain.Context, token, action string) (engine.Decision, error) {
	sess, err := s.Session(ctx, c, token)
	if err != nil {
		return engine.Decision{}, err
	}
	if s.policy == nil {
		return engine.Decision{Reason: "no_policy"}, nil
	}
	return s.policy.Authorize(ctx, engine.Input{
		Context:          string(c),
		Action:           action,
		Method:           string(sess.Method),
		HasIdentity:      sess.HasIdentity(),
		ExpiresInSeconds: int64(time.Until(sess.ExpiresAt).Seconds()),
	})
}

func (s *Service) resolve(ctx context.Context, identifier string, method otpdomain.Method) *string {
	if s.resolver == nil {
		return nil
	}
	id, err := s.resolver.Resolve(ctx, identifier, method)
	if err != nil {
		log.Printf("verification: identity lookup for %s: %v", notify.Mask(identifier), err)
		return nil
	}
	return id
}

func (s *Service) emit(eventType string, c sessiondomain.Context, identifier string, method otpdomain.Method, meta any) {
	if s.emitter == nil {
		return
	}
	ev := telemetry.NewEvent(eventType, eventSource, meta)
	ev.Context = string(c)
	ev.Method = string(method)
	if identifier != "" {
		ev.Identifier = notify.Mask(identifier)
	}
	telemetry.EmitAsync(s.emitter, ev)
}
