// Package handler exposes the verification flow over HTTP.
package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"booking-gate/backend/internal/server/middleware"
	"booking-gate/backend/internal/verification/service"
)

// Handler serves the OTP request and verify routes of one router group.
type Handler struct {
	svc          *service.Service
	cookieSecure bool
}

// NewHandler returns a Handler. cookieSecure marks the session cookie Secure (set in production).
func NewHandler(svc *service.Service, cookieSecure bool) *Handler {
	return &Handler{svc: svc, cookieSecure: cookieSecure}
}

type requestCodeBody struct {
	Identifier string `json:"identifier" binding:"required"`
}

type verifyCodeBody struct {
	Identifier string `json:"identifier" binding:"required"`
	Code       string `json:"code" binding:"required"`
}

type sessionResponse struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Method     string    `json:"method"`
	IdentityID *string   `json:"identity_id"`
}

// RequestCode handles POST /v1/:context/otp.
func (h *Handler) RequestCode(c *gin.Context) {
	var in requestCodeBody
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier is required"})
		return
	}
	req, err := h.svc.RequestCode(c.Request.Context(), in.Identifier)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{
			"message":    "verification code sent",
			"method":     req.Method,
			"expires_at": req.ExpiresAt,
		})
	case errors.Is(err, service.ErrInvalidIdentifier):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDeliveryFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		log.Printf("verification: request code: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// VerifyCode handles POST /v1/:context/otp/verify. On success the token is returned in the body and set
// as an HttpOnly cookie scoped to the context.
func (h *Handler) VerifyCode(c *gin.Context) {
	var in verifyCodeBody
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier and code are required"})
		return
	}
	sc := middleware.ContextFrom(c)
	sess, err := h.svc.VerifyCode(c.Request.Context(), sc, in.Identifier, in.Code)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidOrExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrUnknownContext):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	default:
		log.Printf("verification: verify code: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName(sc), sess.Token, maxAge, "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, sessionResponse{
		Token:      sess.Token,
		ExpiresAt:  sess.ExpiresAt,
		Method:     string(sess.Method),
		IdentityID: sess.IdentityID,
	})
}
