// Package stats records dispatch lane activity (enqueued, dispatched, failed, rejected items) per service.
package stats

import (
	"context"
	"time"
)

// Kind is what happened to a dispatch item.
type Kind string

const (
	KindEnqueued   Kind = "enqueued"
	KindDispatched Kind = "dispatched"
	KindFailed     Kind = "failed"
	KindRejected   Kind = "rejected" // queue closed before the item ran
)

// Event describes one item transition in one lane.
type Event struct {
	ItemID    string
	Service   string
	Kind      Kind
	QueueWait time.Duration // enqueue to dispatch start; zero for enqueued/rejected
	Duration  time.Duration // work run time; zero for enqueued/rejected
	At        time.Time
}

// Recorder persists lane events. Best-effort: callers log and ignore errors.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Counts is a per-service summary.
type Counts struct {
	Enqueued   int64
	Dispatched int64
	Failed     int64
	Rejected   int64
}

func (c *Counts) add(k Kind) {
	switch k {
	case KindEnqueued:
		c.Enqueued++
	case KindDispatched:
		c.Dispatched++
	case KindFailed:
		c.Failed++
	case KindRejected:
		c.Rejected++
	}
}
