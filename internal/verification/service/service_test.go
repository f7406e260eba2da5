package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-gate/backend/internal/otp"
	otpdomain "booking-gate/backend/internal/otp/domain"
	"booking-gate/backend/internal/policy/engine"
	sessiondomain "booking-gate/backend/internal/session/domain"
	sessionservice "booking-gate/backend/internal/session/service"
	telemetrydomain "booking-gate/backend/internal/telemetry/domain"
	"booking-gate/backend/internal/ttlstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// capturingDeliverer records the last code sent per destination.
type capturingDeliverer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (d *capturingDeliverer) Deliver(_ context.Context, _ otpdomain.Method, to, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if d.codes == nil {
		d.codes = make(map[string]string)
	}
	d.codes[to] = code
	return nil
}

func (d *capturingDeliverer) code(to string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.codes[to]
}

type mockResolver struct {
	ids map[string]string
	err error
}

func (r *mockResolver) Resolve(_ context.Context, identifier string, _ otpdomain.Method) (*string, error) {
	if r.err != nil {
		return nil, r.err
	}
	if id, ok := r.ids[identifier]; ok {
		return &id, nil
	}
	return nil, nil
}

type mockEmitter struct {
	mu     sync.Mutex
	events []*telemetrydomain.Event
}

func (m *mockEmitter) Emit(_ context.Context, ev *telemetrydomain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// waitFor returns the first event of eventType, polling because emits are asynchronous.
func (m *mockEmitter) waitFor(t *testing.T, eventType string) *telemetrydomain.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mu.Lock()
		for _, ev := range m.events {
			if ev.EventType == eventType {
				m.mu.Unlock()
				return ev
			}
		}
		m.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("no %s event emitted", eventType)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type staticPolicy struct{ decision engine.Decision }

func (p staticPolicy) Authorize(context.Context, engine.Input) (engine.Decision, error) {
	return p.decision, nil
}

type fixture struct {
	svc      *Service
	clock    *fakeClock
	delivery *capturingDeliverer
	resolver *mockResolver
	emitter  *mockEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)}
	store := ttlstore.New[otpdomain.Entry](ttlstore.WithClock(clock.Now))
	f := &fixture{
		clock:    clock,
		delivery: &capturingDeliverer{},
		resolver: &mockResolver{ids: map[string]string{"a@example.com": "cust-1"}},
		emitter:  &mockEmitter{},
	}
	f.svc = NewService(
		otp.NewService(store),
		sessionservice.NewRegistry(nil, sessionservice.WithRegistryClock(clock.Now)),
		f.delivery,
		f.resolver,
		staticPolicy{engine.Decision{Allowed: true, Reason: "ok"}},
		f.emitter,
	)
	return f
}

func TestRequestAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestCode(ctx, "A@Example.com")
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if req.Identifier != "a@example.com" || req.Method != otpdomain.MethodEmail {
		t.Errorf("request = %+v", req)
	}
	code := f.delivery.code("a@example.com")
	if len(code) != otp.CodeDigits {
		t.Fatalf("delivered code = %q", code)
	}
	issued := f.emitter.waitFor(t, telemetrydomain.TypeOTPIssued)
	if issued.Identifier == "a@example.com" {
		t.Error("telemetry must carry a masked identifier")
	}

	sess, err := f.svc.VerifyCode(ctx, sessiondomain.ContextBooking, "a@example.com", code)
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if sess.Token == "" || sess.Context != sessiondomain.ContextBooking {
		t.Errorf("session = %+v", sess)
	}
	if !sess.HasIdentity() || *sess.IdentityID != "cust-1" {
		t.Errorf("IdentityID = %v, want cust-1", sess.IdentityID)
	}
	f.emitter.waitFor(t, telemetrydomain.TypeSessionMinted)

	got, err := f.svc.Session(ctx, sessiondomain.ContextBooking, sess.Token)
	if err != nil || got.Identifier != "a@example.com" {
		t.Errorf("Session = %+v, %v", got, err)
	}

	if _, err := f.svc.VerifyCode(ctx, sessiondomain.ContextBooking, "a@example.com", code); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("second verify err = %v, want ErrInvalidOrExpired", err)
	}
}

func TestRequestCode_RateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RequestCode(ctx, "5125550100"); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	f.clock.Advance(59 * time.Second)
	if _, err := f.svc.RequestCode(ctx, "512-555-0100"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
	f.emitter.waitFor(t, telemetrydomain.TypeOTPRateLimited)
	f.clock.Advance(time.Second)
	if _, err := f.svc.RequestCode(ctx, "5125550100"); err != nil {
		t.Errorf("after window: %v", err)
	}
}

func TestRequestCode_InvalidIdentifier(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.RequestCode(context.Background(), "  --  "); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("err = %v, want ErrInvalidIdentifier", err)
	}
}

func TestRequestCode_DeliveryFailureDiscardsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.delivery.err = errors.New("provider down")

	if _, err := f.svc.RequestCode(ctx, "5125550100"); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}
	f.emitter.waitFor(t, telemetrydomain.TypeDeliveryFailed)

	f.delivery.err = nil
	if _, err := f.svc.RequestCode(ctx, "5125550100"); err != nil {
		t.Errorf("retry after failed delivery: %v", err)
	}
}

func TestVerifyCode_FailuresAreGeneric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.VerifyCode(ctx, sessiondomain.ContextPortal, "nobody@example.com", "123456"); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("missing: err = %v", err)
	}
	rejected := f.emitter.waitFor(t, telemetrydomain.TypeOTPRejected)
	if string(rejected.Metadata) != `{"reason":"missing"}` {
		t.Errorf("rejected metadata = %s", rejected.Metadata)
	}

	if _, err := f.svc.RequestCode(ctx, "b@example.com"); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(otp.DefaultTTL)
	if _, err := f.svc.VerifyCode(ctx, sessiondomain.ContextPortal, "b@example.com", f.delivery.code("b@example.com")); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("expired: err = %v", err)
	}
}

func TestVerifyCode_UnknownContextKeepsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.RequestCode(ctx, "a@example.com"); err != nil {
		t.Fatal(err)
	}
	code := f.delivery.code("a@example.com")
	if _, err := f.svc.VerifyCode(ctx, sessiondomain.Context("kiosk"), "a@example.com", code); !errors.Is(err, ErrUnknownContext) {
		t.Fatalf("err = %v, want ErrUnknownContext", err)
	}
	if _, err := f.svc.VerifyCode(ctx, sessiondomain.ContextBooking, "a@example.com", code); err != nil {
		t.Errorf("code should survive a request for an unknown context: %v", err)
	}
}

func TestVerifyCode_LookupFailureStillMints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolver.err = errors.New("crm timeout")

	if _, err := f.svc.RequestCode(ctx, "a@example.com"); err != nil {
		t.Fatal(err)
	}
	sess, err := f.svc.VerifyCode(ctx, sessiondomain.ContextAssistant, "a@example.com", f.delivery.code("a@example.com"))
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if sess.HasIdentity() {
		t.Error("session should mint without identity when lookup fails")
	}
}

func TestPromoteLogoutAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.RequestCode(ctx, "5125550100"); err != nil {
		t.Fatal(err)
	}
	sess, err := f.svc.VerifyCode(ctx, sessiondomain.ContextPortal, "5125550100", f.delivery.code("5125550100"))
	if err != nil {
		t.Fatal(err)
	}
	if sess.HasIdentity() {
		t.Fatal("unknown phone should have no identity")
	}

	if err := f.svc.PromoteIdentity(ctx, sessiondomain.ContextPortal, sess.Token, "cust-9"); err != nil {
		t.Fatalf("PromoteIdentity: %v", err)
	}
	if err := f.svc.PromoteIdentity(ctx, sessiondomain.ContextPortal, sess.Token, "cust-10"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second promotion err = %v, want ErrSessionNotFound", err)
	}
	f.emitter.waitFor(t, telemetrydomain.TypeSessionPromoted)

	d, err := f.svc.Authorize(ctx, sessiondomain.ContextPortal, sess.Token, engine.ActionViewBookings)
	if err != nil || !d.Allowed {
		t.Errorf("Authorize = %+v, %v", d, err)
	}

	if err := f.svc.Logout(ctx, sessiondomain.ContextPortal, sess.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Session(ctx, sessiondomain.ContextPortal, sess.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("after logout err = %v", err)
	}
	if _, err := f.svc.Authorize(ctx, sessiondomain.ContextPortal, sess.Token, engine.ActionBook); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Authorize after logout err = %v", err)
	}
	f.emitter.waitFor(t, telemetrydomain.TypeSessionCleared)
}

func TestSessionExpiresWithContextTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.RequestCode(ctx, "a@example.com"); err != nil {
		t.Fatal(err)
	}
	sess, err := f.svc.VerifyCode(ctx, sessiondomain.ContextBooking, "a@example.com", f.delivery.code("a@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(sessionservice.DefaultTTLs[sessiondomain.ContextBooking])
	if _, err := f.svc.Session(ctx, sessiondomain.ContextBooking, sess.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound after TTL", err)
	}
}
