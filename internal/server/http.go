package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booking-gate/backend/internal/server/middleware"
	sessionhandler "booking-gate/backend/internal/session/handler"
	"booking-gate/backend/internal/telemetry"
	verificationhandler "booking-gate/backend/internal/verification/handler"
	"booking-gate/backend/internal/verification/service"
)

// HTTPDeps holds what the HTTP router needs.
type HTTPDeps struct {
	Verification *service.Service
	// Limiter throttles OTP routes per client IP. If nil, they are not throttled.
	Limiter *middleware.IPLimiter
	// Emitter receives http_request events. If nil, requests are not reported.
	Emitter      telemetry.EventEmitter
	CookieSecure bool
}

// NewRouter builds the HTTP surface:
//
//	GET    /healthz
//	POST   /v1/:context/otp
//	POST   /v1/:context/otp/verify
//	GET    /v1/:context/session
//	PUT    /v1/:context/session/identity
//	DELETE /v1/:context/session
//	POST   /v1/:context/session/authorize
func NewRouter(deps HTTPDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Telemetry(deps.Emitter, map[string]bool{"/healthz": true}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	vh := verificationhandler.NewHandler(deps.Verification, deps.CookieSecure)
	sh := sessionhandler.NewHandler(deps.Verification, deps.CookieSecure)

	v1 := r.Group("/v1/:context", middleware.SessionContext())
	{
		otp := v1.Group("/otp", middleware.RateLimit(deps.Limiter))
		otp.POST("", vh.RequestCode)
		otp.POST("/verify", vh.VerifyCode)

		sess := v1.Group("/session")
		sess.GET("", sh.Get)
		sess.PUT("/identity", sh.PromoteIdentity)
		sess.DELETE("", sh.Logout)
		sess.POST("/authorize", sh.Authorize)
	}
	return r
}
