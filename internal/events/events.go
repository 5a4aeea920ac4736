// Package events publishes session progress to a message bus.
// Delivery is best effort: publishing failures never fail a step.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Event describes one state change of an optimization session.
type Event struct {
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id"`
	Iteration int       `json:"iteration"`
	State     string    `json:"state"`
	Params    []float64 `json:"params,omitempty"`
	Y         *float64  `json:"y,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close()                               {}

// LogPublisher writes every event to a logger at debug level.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a LogPublisher; nil uses slog.Default().
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.DebugContext(ctx, "Session event",
		"kind", e.Kind,
		"session", e.SessionID,
		"iteration", e.Iteration,
		"state", e.State,
		"params", e.Params,
	)
	return nil
}

func (p *LogPublisher) Close() {}

// Fanout forwards each event to several publishers and returns the first error.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f Fanout) Close() {
	for _, p := range f {
		p.Close()
	}
}
