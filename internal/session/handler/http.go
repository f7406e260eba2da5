// Package handler exposes session reads, identity promotion, logout, and authorization over HTTP.
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

// Handler serves the /v1/:context/session routes.
type Handler struct {
	svc          *service.Service
	cookieSecure bool
}

// NewHandler returns a Handler backed by svc.
func NewHandler(svc *service.Service, cookieSecure bool) *Handler {
	return &Handler{svc: svc, cookieSecure: cookieSecure}
}

type sessionView struct {
	Context    string    `json:"context"`
	Identifier string    `json:"identifier"`
	Method     string    `json:"method"`
	VerifiedAt time.Time `json:"verified_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IdentityID *string   `json:"identity_id"`
}

type identityBody struct {
	IdentityID string `json:"identity_id" binding:"required"`
}

type authorizeBody struct {
	Action string `json:"action" binding:"required"`
}

// Get handles GET /session.
func (h *Handler) Get(c *gin.Context) {
	token := middleware.SessionToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session token"})
		return
	}
	sess, err := h.svc.Session(c.Request.Context(), middleware.ContextFrom(c), token)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView{
		Context:    string(sess.Context),
		Identifier: sess.Identifier,
		Method:     string(sess.Method),
		VerifiedAt: sess.VerifiedAt,
		ExpiresAt:  sess.ExpiresAt,
		IdentityID: sess.IdentityID,
	})
}

// PromoteIdentity handles PUT /session/identity. It links a customer record once.
func (h *Handler) PromoteIdentity(c *gin.Context) {
	var in identityBody
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity_id is required"})
		return
	}
	token := middleware.SessionToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session token"})
		return
	}
	err := h.svc.PromoteIdentity(c.Request.Context(), middleware.ContextFrom(c), token, in.IdentityID)
	if errors.Is(err, service.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Logout handles DELETE /session. It always clears the cookie.
func (h *Handler) Logout(c *gin.Context) {
	sc := middleware.ContextFrom(c)
	if token := middleware.SessionToken(c); token != "" {
		if err := h.svc.Logout(c.Request.Context(), sc, token); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName(sc), "", -1, "/", "", h.cookieSecure, true)
	c.Status(http.StatusNoContent)
}

// Authorize handles POST /session/authorize.
func (h *Handler) Authorize(c *gin.Context) {
	var in authorizeBody
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}
	token := middleware.SessionToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session token"})
		return
	}
	d, err := h.svc.Authorize(c.Request.Context(), middleware.ContextFrom(c), token, in.Action)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": d.Allowed, "reason": d.Reason})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnknownContext):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
