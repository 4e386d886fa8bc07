package events

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// NoopPublisher drops every event. The server uses it when no broker is
// configured and no in-process bus is wanted.
type NoopPublisher struct {
	// Logger, when set, records each dropped topic at debug level.
	Logger *slog.Logger

	dropped atomic.Int64
}

func (n *NoopPublisher) Publish(_ context.Context, topic string, _ any) error {
	n.dropped.Add(1)
	if n.Logger != nil {
		n.Logger.Debug("event dropped, realtime disabled", "topic", topic)
	}
	return nil
}

// Dropped returns the number of events published so far.
func (n *NoopPublisher) Dropped() int64 {
	return n.dropped.Load()
}

func (n *NoopPublisher) Close() error {
	return nil
}
