// Package dispatch serializes and throttles outbound calls per external service.
//
// Each service name owns a FIFO lane. Items in a lane start strictly in submission order, and each start is
// separated from the previous start by at least 1s/rps. Lanes are independent of each other.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"booking-gate/backend/internal/dispatch/stats"
)

const (
	meterName     = "booking-gate/dispatch"
	recordTimeout = 2 * time.Second
)

// ErrClosed is returned for work submitted after Close, and for work still queued when Close ran.
var ErrClosed = errors.New("dispatch: queue closed")

// Work is one outbound call. ctx is cancelled when the queue is closed.
type Work func(ctx context.Context) (any, error)

// PanicError is the error a submitter receives when its work panicked.
type PanicError struct {
	Service string
	Value   any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("dispatch: work on %q panicked: %v", e.Service, e.Value)
}

type item struct {
	id         string
	work       Work
	future     *Future
	enqueuedAt time.Time
}

type lane struct {
	name string

	mu          sync.Mutex
	items       []*item
	running     bool
	minInterval time.Duration

	// touched only by the drain goroutine
	lastStart time.Time
}

// Queue holds one lane per service name.
type Queue struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	recorder stats.Recorder
	meter    metric.Meter
	items    metric.Int64Counter
	wait     metric.Float64Histogram
}

// Option configures a Queue.
type Option func(*Queue)

// WithStats records lane activity through r. Recording is asynchronous and best-effort.
func WithStats(r stats.Recorder) Option {
	return func(q *Queue) { q.recorder = r }
}

// WithMeter sets the meter used for dispatch metrics. Defaults to the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(q *Queue) {
		if m != nil {
			q.meter = m
		}
	}
}

// New returns an empty Queue. Lanes are created on first use.
func New(opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		lanes:  make(map[string]*lane),
		ctx:    ctx,
		cancel: cancel,
		meter:  otel.GetMeterProvider().Meter(meterName),
	}
	for _, opt := range opts {
		opt(q)
	}
	var err error
	q.items, err = q.meter.Int64Counter("dispatch.items",
		metric.WithDescription("Dispatch items by service and outcome"))
	if err != nil {
		log.Printf("dispatch: items counter: %v", err)
	}
	q.wait, err = q.meter.Float64Histogram("dispatch.queue_wait",
		metric.WithDescription("Time from enqueue to dispatch start"),
		metric.WithUnit("ms"))
	if err != nil {
		log.Printf("dispatch: queue_wait histogram: %v", err)
	}
	return q
}

// Enqueue appends work to the lane for service and returns its Future. rps replaces the lane's budget for
// every item dispatched from now on; rps <= 0 disables throttling.
func (q *Queue) Enqueue(service string, rps float64, work Work) *Future {
	f := newFuture()
	it := &item{id: uuid.NewString(), work: work, future: f, enqueuedAt: time.Now()}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		f.settle(nil, ErrClosed)
		q.record(stats.Event{ItemID: it.id, Service: service, Kind: stats.KindRejected, At: it.enqueuedAt})
		return f
	}
	l, ok := q.lanes[service]
	if !ok {
		l = &lane{name: service}
		q.lanes[service] = l
	}
	l.mu.Lock()
	l.minInterval = interval(rps)
	l.items = append(l.items, it)
	start := !l.running
	if start {
		l.running = true
		q.wg.Add(1)
	}
	l.mu.Unlock()
	q.mu.Unlock()

	if start {
		go q.drain(l)
	}
	q.record(stats.Event{ItemID: it.id, Service: service, Kind: stats.KindEnqueued, At: it.enqueuedAt})
	return f
}

// Do enqueues fn on the lane for service and waits for its outcome. If ctx ends first, the work still runs
// but its result is discarded.
func Do[T any](ctx context.Context, q *Queue, service string, rps float64, fn func(context.Context) (T, error)) (T, error) {
	f := q.Enqueue(service, rps, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	var zero T
	v, err := f.Wait(ctx)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return t, nil
}

// Pending returns the number of items waiting in the lane for service, excluding one that is running.
func (q *Queue) Pending(service string) int {
	q.mu.Lock()
	l, ok := q.lanes[service]
	q.mu.Unlock()
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Close rejects new work, fails queued items with ErrClosed, cancels the context of running work, and waits
// for every lane to stop. Calling Close more than once is safe.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.closed = true
	lanes := make([]*lane, 0, len(q.lanes))
	for _, l := range q.lanes {
		lanes = append(lanes, l)
	}
	q.mu.Unlock()

	for _, l := range lanes {
		l.mu.Lock()
		pending := l.items
		l.items = nil
		l.mu.Unlock()
		for _, it := range pending {
			it.future.settle(nil, ErrClosed)
			q.record(stats.Event{ItemID: it.id, Service: l.name, Kind: stats.KindRejected, At: time.Now()})
		}
	}
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) drain(l *lane) {
	defer q.wg.Done()
	for {
		l.mu.Lock()
		if len(l.items) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		minInterval := l.minInterval
		l.mu.Unlock()

		if !l.lastStart.IsZero() && minInterval > 0 {
			if wait := minInterval - time.Since(l.lastStart); wait > 0 {
				q.sleep(wait)
			}
		}

		l.mu.Lock()
		if len(l.items) == 0 {
			// Close emptied the lane while we slept.
			l.running = false
			l.mu.Unlock()
			return
		}
		it := l.items[0]
		l.items[0] = nil
		l.items = l.items[1:]
		l.mu.Unlock()

		l.lastStart = time.Now()
		q.run(l.name, it, l.lastStart)
	}
}

func (q *Queue) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-q.ctx.Done():
	}
}

func (q *Queue) run(service string, it *item, started time.Time) {
	queueWait := started.Sub(it.enqueuedAt)
	v, err := call(q.ctx, service, it.work)
	took := time.Since(started)
	it.future.settle(v, err)

	kind := stats.KindDispatched
	if err != nil {
		kind = stats.KindFailed
		var pe *PanicError
		if errors.As(err, &pe) {
			log.Printf("dispatch: %v", pe)
		}
	}
	q.observe(service, kind, queueWait)
	q.record(stats.Event{
		ItemID:    it.id,
		Service:   service,
		Kind:      kind,
		QueueWait: queueWait,
		Duration:  took,
		At:        started,
	})
}

func call(ctx context.Context, service string, work Work) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, &PanicError{Service: service, Value: r}
		}
	}()
	return work(ctx)
}

func (q *Queue) observe(service string, kind stats.Kind, queueWait time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("outcome", string(kind)),
	)
	if q.items != nil {
		q.items.Add(ctx, 1, attrs)
	}
	if q.wait != nil {
		q.wait.Record(ctx, float64(queueWait)/float64(time.Millisecond),
			metric.WithAttributes(attribute.String("service", service)))
	}
}

func (q *Queue) record(ev stats.Event) {
	if q.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := q.recorder.Record(ctx, ev); err != nil {
			log.Printf("dispatch: record %s %s: %v", ev.Service, ev.Kind, err)
		}
	}()
}

func interval(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rps)
}
