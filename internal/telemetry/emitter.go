// Package telemetry carries verification and session events to OTel logs and Kafka.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"booking-gate/backend/internal/telemetry/domain"
)

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// NewEvent builds an event with a fresh ID and the current time. meta is JSON-encoded into Metadata when non-nil.
func NewEvent(eventType, source string, meta any) *domain.Event {
	ev := &domain.Event{
		ID:        uuid.NewString(),
		EventType: eventType,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if meta != nil {
		if raw, err := json.Marshal(meta); err == nil {
			ev.Metadata = raw
		}
	}
	return ev
}

// Multi fans each event out to every non-nil emitter. All emitters are tried; errors are joined.
func Multi(emitters ...EventEmitter) EventEmitter {
	var m multi
	for _, e := range emitters {
		if e != nil {
			m = append(m, e)
		}
	}
	return m
}

type multi []EventEmitter

func (m multi) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
