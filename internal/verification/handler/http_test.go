package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"booking-gate/backend/internal/otp"
	otpdomain "booking-gate/backend/internal/otp/domain"
	"booking-gate/backend/internal/server/middleware"
	sessionservice "booking-gate/backend/internal/session/service"
	"booking-gate/backend/internal/ttlstore"
	"booking-gate/backend/internal/verification/service"
)

type failingDeliverer struct{}

func (failingDeliverer) Deliver(context.Context, otpdomain.Method, string, string) error {
	return errors.New("smtp: 421 service not available")
}

func newRouter(d service.Deliverer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewService(
		otp.NewService(ttlstore.New[otpdomain.Entry]()),
		sessionservice.NewRegistry(nil),
		d, nil, nil, nil,
	)
	h := NewHandler(svc, true)
	r := gin.New()
	g := r.Group("/v1/:context", middleware.SessionContext())
	g.POST("/otp", h.RequestCode)
	g.POST("/otp/verify", h.VerifyCode)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestCode_DeliveryFailure(t *testing.T) {
	r := newRouter(failingDeliverer{})
	w := post(r, "/v1/booking/otp", `{"identifier":"a@example.com"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if strings.Contains(w.Body.String(), "421") {
		t.Errorf("provider error leaked to client: %s", w.Body)
	}
	// The code was discarded, so the caller is not rate limited.
	if w := post(r, "/v1/booking/otp", `{"identifier":"a@example.com"}`); w.Code != http.StatusBadGateway {
		t.Errorf("retry status = %d, want 502 (not 429)", w.Code)
	}
}

func TestHandlers_BadBodies(t *testing.T) {
	r := newRouter(failingDeliverer{})
	testCases := []struct {
		name string
		path string
		body string
	}{
		{"otp not json", "/v1/booking/otp", "identifier=a"},
		{"otp empty", "/v1/booking/otp", `{}`},
		{"verify missing code", "/v1/booking/otp/verify", `{"identifier":"a@example.com"}`},
		{"verify missing identifier", "/v1/booking/otp/verify", `{"code":"123456"}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if w := post(r, tc.path, tc.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestVerifyCode_SecureCookie(t *testing.T) {
	box := &memoryDeliverer{}
	r := newRouter(box)
	if w := post(r, "/v1/assistant/otp", `{"identifier":"+1 (512) 555-0100"}`); w.Code != http.StatusAccepted {
		t.Fatalf("request: %d", w.Code)
	}
	w := post(r, "/v1/assistant/otp/verify", `{"identifier":"15125550100","code":"`+box.code+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", w.Code, w.Body)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || !cookies[0].Secure || cookies[0].Name != "bg_assistant_session" {
		t.Errorf("cookies = %+v", cookies)
	}
	if !strings.Contains(w.Body.String(), `"method":"phone"`) {
		t.Errorf("body = %s", w.Body)
	}
}

type memoryDeliverer struct{ code string }

func (m *memoryDeliverer) Deliver(_ context.Context, _ otpdomain.Method, _, code string) error {
	m.code = code
	return nil
}
