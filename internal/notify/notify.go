// Package notify routes verification codes to a delivery transport through the dispatch queue.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"booking-gate/backend/internal/dispatch"
	otpdomain "booking-gate/backend/internal/otp/domain"
)

// Dispatch lanes used for code delivery.
const (
	LaneSMS   = "sms-provider"
	LaneEmail = "email-provider"
)

const sendTimeout = 20 * time.Second

// ErrNoRoute is returned when no transport is configured for a method.
var ErrNoRoute = errors.New("notify: no transport for method")

// Sender delivers a code to a destination (phone digits or email address).
type Sender interface {
	Send(ctx context.Context, to, code string) error
}

// Route binds a method to a Sender and the dispatch lane that throttles it.
type Route struct {
	Sender Sender
	Lane   string
	RPS    float64
}

// Dispatcher delivers codes through per-provider dispatch lanes.
type Dispatcher struct {
	queue  *dispatch.Queue
	routes map[otpdomain.Method]Route
}

// NewDispatcher returns a Dispatcher using queue for throttling.
func NewDispatcher(queue *dispatch.Queue, routes map[otpdomain.Method]Route) *Dispatcher {
	r := make(map[otpdomain.Method]Route, len(routes))
	for m, route := range routes {
		if route.Sender != nil {
			r[m] = route
		}
	}
	return &Dispatcher{queue: queue, routes: r}
}

// Deliver sends code to to over the transport for method and waits for the outcome.
// If ctx ends before the lane reaches the item, the send still happens.
func (d *Dispatcher) Deliver(ctx context.Context, method otpdomain.Method, to, code string) error {
	route, ok := d.routes[method]
	if !ok {
		return fmt.Errorf("%w %q", ErrNoRoute, method)
	}
	_, err := dispatch.Do(ctx, d.queue, route.Lane, route.RPS, func(ctx context.Context) (struct{}, error) {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		return struct{}{}, route.Sender.Send(sendCtx, to, code)
	})
	return err
}

// LogSender stands in for a real transport in development. It logs the masked destination, never the code.
type LogSender struct {
	Channel string
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, to, _ string) error {
	log.Printf("notify: %s code for %s not delivered (log sender)", s.Channel, Mask(to))
	return nil
}

// Mask hides most of a destination for logs and telemetry: the local part of an email, or all but the
// last four digits of a phone number.
func Mask(to string) string {
	if at := strings.LastIndex(to, "@"); at >= 0 {
		if at == 0 {
			return "*" + to
		}
		return to[:1] + "***" + to[at:]
	}
	if len(to) <= 4 {
		return strings.Repeat("*", len(to))
	}
	return strings.Repeat("*", len(to)-4) + to[len(to)-4:]
}
