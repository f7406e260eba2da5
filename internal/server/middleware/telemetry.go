package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"booking-gate/backend/internal/telemetry"
	telemetrydomain "booking-gate/backend/internal/telemetry/domain"
)

const (
	requestIDHeader = "X-Request-ID"
	requestSource   = "http_middleware"
)

// httpRequestMetadata is the JSON shape stored in Event.Metadata for http_request events.
type httpRequestMetadata struct {
	RequestID  string `json:"request_id"`
	Method     string `json:"method"`
	Route      string `json:"route"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// RequestID echoes the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Telemetry emits an http_request event after each request. Best-effort: emission never affects the response.
// If emitter is nil, the middleware no-ops. skipRoutes holds route patterns (e.g. "/healthz") not to emit.
func Telemetry(emitter telemetry.EventEmitter, skipRoutes map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if emitter == nil || skipRoutes[route] {
			return
		}
		if route == "" {
			route = "unmatched"
		}
		ev := telemetry.NewEvent(telemetrydomain.TypeHTTPRequest, requestSource, httpRequestMetadata{
			RequestID:  c.GetString(requestIDHeader),
			Method:     c.Request.Method,
			Route:      route,
			StatusCode: c.Writer.Status(),
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   c.ClientIP(),
		})
		if sc := ContextFrom(c); sc != "" {
			ev.Context = string(sc)
		}
		telemetry.EmitAsync(emitter, ev)
	}
}
