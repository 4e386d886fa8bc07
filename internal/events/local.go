package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when publishing to or subscribing on a closed bus.
var ErrClosed = errors.New("events: bus closed")

// Local is an in-process bus implementing both Publisher and Subscriber.
// It is used when no NATS URL is configured, so a single process still
// gets realtime change notifications.
type Local struct {
	mu     sync.RWMutex
	subs   map[*localSub]struct{}
	closed bool
}

type localSub struct {
	pattern string
	ch      chan []byte
}

// NewLocal returns an empty in-process bus.
func NewLocal() *Local {
	return &Local{subs: make(map[*localSub]struct{})}
}

// Publish JSON-encodes event and delivers it to every matching subscriber.
// Slow subscribers drop messages rather than block the publisher.
func (l *Local) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	for s := range l.subs {
		if !MatchTopic(s.pattern, topic) {
			continue
		}
		select {
		case s.ch <- data:
		default:
		}
	}
	return nil
}

// Subscribe delivers payloads for topics matching pattern until the returned
// cancel function is called.
func (l *Local) Subscribe(pattern string) (<-chan []byte, func(), error) {
	s := &localSub{pattern: pattern, ch: make(chan []byte, subscriberBuffer)}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, nil, ErrClosed
	}
	l.subs[s] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			_, live := l.subs[s]
			delete(l.subs, s)
			l.mu.Unlock()
			if live {
				close(s.ch)
			}
		})
	}
	return s.ch, cancel, nil
}

// Close closes every open subscription channel.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for s := range l.subs {
		close(s.ch)
		delete(l.subs, s)
	}
	return nil
}
