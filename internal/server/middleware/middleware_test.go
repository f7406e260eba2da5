package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	sessiondomain "booking-gate/backend/internal/session/domain"
	telemetrydomain "booking-gate/backend/internal/telemetry/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIPLimiter_BurstThenReject(t *testing.T) {
	l := NewIPLimiter(1, 2)
	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d within burst rejected", i)
		}
	}
	ok, wait := l.Allow("10.0.0.1")
	if ok {
		t.Fatal("third request should be rejected")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait = %v, want (0, 1s]", wait)
	}
	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Error("a different client should have its own bucket")
	}
}

func TestIPLimiter_RejectedRequestsDoNotConsume(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPLimiter(1, 1)
	l.nowF = func() time.Time { return now }

	if ok, _ := l.Allow("a"); !ok {
		t.Fatal("first request rejected")
	}
	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow("a"); ok {
			t.Fatal("request inside the same second allowed")
		}
	}
	now = now.Add(time.Second)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("bucket should refill after 1s regardless of rejected attempts")
	}
}

func TestIPLimiter_Disabled(t *testing.T) {
	l := NewIPLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if ok, _ := l.Allow("x"); !ok {
			t.Fatal("rps 0 should not limit")
		}
	}
	var nilLimiter *IPLimiter
	if ok, _ := nilLimiter.Allow("x"); !ok {
		t.Error("nil limiter should allow")
	}
}

func TestIPLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPLimiter(1, 1, WithIdleTTL(time.Minute))
	l.nowF = func() time.Time { return now }
	l.Allow("old")
	now = now.Add(2 * time.Minute)
	l.Allow("new")
	l.Cleanup()
	if n := l.Len(); n != 1 {
		t.Errorf("Len after cleanup = %d, want 1", n)
	}
}

func TestIPLimiter_RunStopsOnCancel(t *testing.T) {
	l := NewIPLimiter(1, 1, WithCleanupEvery(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	r := gin.New()
	r.POST("/otp", RateLimit(NewIPLimiter(1, 1)), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/otp", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		r.ServeHTTP(w, req)
		return w
	}
	if w := do(); w.Code != http.StatusAccepted {
		t.Fatalf("first status = %d", w.Code)
	}
	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", w.Header().Get("Retry-After"))
	}
}

func TestSessionContext(t *testing.T) {
	r := gin.New()
	var got sessiondomain.Context
	r.GET("/v1/:context/session", SessionContext(), func(c *gin.Context) {
		got = ContextFrom(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/portal/session", nil))
	if w.Code != http.StatusOK || got != sessiondomain.ContextPortal {
		t.Errorf("portal: status %d, context %q", w.Code, got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/kiosk/session", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown context status = %d, want 404", w.Code)
	}
}

func TestSessionToken(t *testing.T) {
	r := gin.New()
	var got string
	r.GET("/v1/:context/session", SessionContext(), func(c *gin.Context) {
		got = SessionToken(c)
	})

	testCases := []struct {
		name   string
		header string
		cookie *http.Cookie
		want   string
	}{
		{"bearer", "Bearer abc", nil, "abc"},
		{"bearer lower case", "bearer  abc ", nil, "abc"},
		{"cookie", "", &http.Cookie{Name: "bg_booking_session", Value: "cookie-tok"}, "cookie-tok"},
		{"header wins", "Bearer hdr", &http.Cookie{Name: "bg_booking_session", Value: "cookie-tok"}, "hdr"},
		{"other namespace cookie", "", &http.Cookie{Name: "bg_portal_session", Value: "x"}, ""},
		{"basic auth ignored", "Basic Zm9vOmJhcg==", nil, ""},
		{"none", "", nil, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got = "unset"
			req := httptest.NewRequest(http.MethodGet, "/v1/booking/session", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}
			r.ServeHTTP(httptest.NewRecorder(), req)
			if got != tc.want {
				t.Errorf("SessionToken = %q, want %q", got, tc.want)
			}
		})
	}
}

type mockEmitter struct {
	mu     sync.Mutex
	events []*telemetrydomain.Event
	ch     chan struct{}
}

func (m *mockEmitter) Emit(_ context.Context, ev *telemetrydomain.Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	m.ch <- struct{}{}
	return nil
}

func TestTelemetry_EmitsRequestEvent(t *testing.T) {
	em := &mockEmitter{ch: make(chan struct{}, 4)}
	r := gin.New()
	r.Use(RequestID(), Telemetry(em, map[string]bool{"/healthz": true}))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/:context/session", SessionContext(), func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/assistant/session", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") != "req-1" {
		t.Errorf("X-Request-ID = %q", w.Header().Get("X-Request-ID"))
	}

	select {
	case <-em.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no event emitted")
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.events) != 1 {
		t.Fatalf("events = %d, want 1 (healthz skipped)", len(em.events))
	}
	ev := em.events[0]
	if ev.EventType != telemetrydomain.TypeHTTPRequest || ev.Context != "assistant" {
		t.Errorf("event = %+v", ev)
	}
	var meta httpRequestMetadata
	if err := json.Unmarshal(ev.Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Route != "/v1/:context/session" || meta.StatusCode != http.StatusUnauthorized || meta.RequestID != "req-1" {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestRequestID_Generated(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(w.Header().Get("X-Request-ID")) != 36 {
		t.Errorf("generated X-Request-ID = %q", w.Header().Get("X-Request-ID"))
	}
}
