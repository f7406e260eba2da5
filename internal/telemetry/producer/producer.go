// Package producer publishes telemetry events to a message broker for the worker to ship to Loki.
package producer

import (
	"context"

	"booking-gate/backend/internal/telemetry/domain"
)

// Producer emits telemetry events. Callers use it best-effort: log and ignore errors.
// It satisfies telemetry.EventEmitter.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call through telemetry.EmitAsync.
	Emit(ctx context.Context, event *domain.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
