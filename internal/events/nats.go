package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// subscriberBuffer is the per-subscription channel capacity. Invalidation
// only needs to know that something changed, so dropping excess messages
// for a slow consumer loses nothing.
const subscriberBuffer = 64

func connect(url, name string, opts []nats.Option) (*nats.Conn, error) {
	all := append([]nats.Option{nats.Name(name)}, opts...)
	nc, err := nats.Connect(url, all...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes JSON-encoded events to NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url (STUDIO_NATS_URL).
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, "studiodesk-publisher", opts)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Flush waits until every published message has been acknowledged by the server.
func (p *NATSPublisher) Flush(timeout time.Duration) error {
	return p.conn.FlushTimeout(timeout)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber subscribes to events from NATS subjects.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects to NATS with unlimited reconnects. Extra options
// (e.g. disconnect/reconnect handlers) are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := connect(url, "studiodesk-subscriber", append(defaults, opts...))
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe returns a channel of raw payloads published on subjects matching
// topic (NATS wildcards allowed). The cancel function unsubscribes and closes
// the channel; it is safe to call more than once.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, subscriberBuffer)

	var (
		mu     sync.Mutex
		closed bool
	)
	deliver := func(msg *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- msg.Data:
		default:
		}
	}

	sub, err := s.conn.Subscribe(topic, deliver)
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// The subscription must be registered server-side before we return, or
	// changes published right after Subscribe on another connection are lost.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Connected reports whether the underlying connection is currently up.
func (s *NATSSubscriber) Connected() bool {
	return s.conn.IsConnected()
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
