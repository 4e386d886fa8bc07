package events

// Subscriber delivers change payloads to list controllers. Implementations
// are the in-process bus, NATS, and the HTTP event stream client.
type Subscriber interface {
	// Subscribe streams the JSON payload of every event whose topic matches
	// pattern. The cancel func unsubscribes and closes the channel; it is
	// safe to call more than once.
	Subscribe(pattern string) (<-chan []byte, func(), error)
	Close() error
}
