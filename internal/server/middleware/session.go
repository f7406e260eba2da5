package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	sessiondomain "booking-gate/backend/internal/session/domain"
)

const (
	contextKey   = "session_context"
	bearerPrefix = "bearer "
)

// SessionContext resolves the :context path parameter and aborts with 404 for unknown namespaces.
func SessionContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := sessiondomain.ParseContext(c.Param("context"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown session context"})
			return
		}
		c.Set(contextKey, sc)
		c.Next()
	}
}

// ContextFrom returns the namespace set by SessionContext.
func ContextFrom(c *gin.Context) sessiondomain.Context {
	v, _ := c.Get(contextKey)
	sc, _ := v.(sessiondomain.Context)
	return sc
}

// CookieName is the session cookie for namespace sc.
func CookieName(sc sessiondomain.Context) string {
	return "bg_" + string(sc) + "_session"
}

// SessionToken returns the Bearer token from the Authorization header, falling back to the namespace
// cookie. It returns "" when neither is present.
func SessionToken(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader("Authorization")); len(v) > len(bearerPrefix) &&
		strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(v[len(bearerPrefix):])
	}
	if tok, err := c.Cookie(CookieName(ContextFrom(c))); err == nil {
		return tok
	}
	return ""
}
