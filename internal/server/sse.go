package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/studiodesk/internal/events"
	"github.com/alfredjeanlab/studiodesk/internal/model"
)

const (
	// sseReplaySize is how many recent changes are kept for Last-Event-ID
	// replay.
	sseReplaySize = 1000

	sseClientBuffer      = 64
	sseKeepaliveInterval = 15 * time.Second

	// ResyncTopic names the control event sent when a stream consumer has
	// missed changes.
	ResyncTopic = "studio.resync"
)

// sseEvent is one change as sent on the wire.
type sseEvent struct {
	ID    uint64
	Topic string
	Data  []byte // JSON
}

// replayRing keeps the most recent events in id order.
type replayRing struct {
	mu    sync.RWMutex
	buf   []sseEvent
	start int // index of the oldest event
	n     int
}

func newReplayRing(size int) *replayRing {
	return &replayRing{buf: make([]sseEvent, max(size, 1))}
}

func (r *replayRing) push(evt sseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = evt
		r.n++
		return
	}
	r.buf[r.start] = evt
	r.start = (r.start + 1) % len(r.buf)
}

// since returns the buffered events after lastID. complete is false when
// events after lastID were already evicted.
func (r *replayRing) since(lastID uint64) (evts []sseEvent, complete bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.n == 0 {
		return nil, true
	}
	complete = r.buf[r.start].ID <= lastID+1
	for i := range r.n {
		evt := r.buf[(r.start+i)%len(r.buf)]
		if evt.ID > lastID {
			evts = append(evts, evt)
		}
	}
	return evts, complete
}

// sseHub fans out row changes to connected stream clients.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	lastID  atomic.Uint64
	replay  *replayRing
}

// sseClient is one connected stream. A client whose buffer overflows is
// marked lagged and gets a resync instead of the dropped events.
type sseClient struct {
	workspace string   // empty sees every workspace
	topics    []string // NATS-style patterns, empty matches all
	ch        chan *sseEvent
	lagged    atomic.Bool
}

func newSSEHub(replaySize int) *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
		replay:  newReplayRing(replaySize),
	}
}

func (h *sseHub) broadcast(topic string, payload []byte) {
	evt := sseEvent{ID: h.lastID.Add(1), Topic: topic, Data: payload}
	h.replay.push(evt)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matches(topic) {
			continue
		}
		select {
		case c.ch <- &evt:
		default:
			c.lagged.Store(true)
		}
	}
}

func (h *sseHub) subscribe(workspace string, topics []string) *sseClient {
	c := &sseClient{workspace: workspace, topics: topics, ch: make(chan *sseEvent, sseClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns what a client reconnecting with lastID missed. An id
// ahead of the hub means the server restarted, which is never complete.
func (h *sseHub) eventsSince(lastID uint64) ([]sseEvent, bool) {
	if lastID > h.lastID.Load() {
		return nil, false
	}
	return h.replay.since(lastID)
}

// matches reports whether topic is inside the client's workspace and one of
// its patterns.
func (c *sseClient) matches(topic string) bool {
	if c.workspace != "" && !events.MatchTopic(events.WorkspaceTopic(c.workspace), topic) {
		return false
	}
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if events.MatchTopic(pattern, topic) {
			return true
		}
	}
	return false
}

// streamRequest is the parsed form of GET /v1/events/stream.
type streamRequest struct {
	workspace string
	user      string
	topics    []string
	lastID    uint64
	resume    bool
}

func parseStreamRequest(r *http.Request) streamRequest {
	q := r.URL.Query()
	req := streamRequest{
		workspace: firstNonEmpty(r.Header.Get(HeaderWorkspace), q.Get("workspace")),
		user:      firstNonEmpty(r.Header.Get(HeaderUser), q.Get("user")),
	}
	for _, t := range strings.Split(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			req.topics = append(req.topics, t)
		}
	}
	if id, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		req.lastID, req.resume = id, true
	}
	return req
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// handleEventStream handles GET /v1/events/stream.
func (s *StudioServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	req := parseStreamRequest(r)

	client := s.sseHub.subscribe(req.workspace, req.topics)
	defer s.sseHub.unsubscribe(client)
	defer s.presence.Connect(req.workspace, req.user, req.topics)()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if req.resume {
		missed, complete := s.sseHub.eventsSince(req.lastID)
		if !complete {
			s.writeResync(w, req.workspace)
		} else {
			for i := range missed {
				if client.matches(missed[i].Topic) {
					writeSSEEvent(w, &missed[i])
				}
			}
		}
		flusher.Flush()
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			if client.lagged.Swap(false) {
				s.writeResync(w, req.workspace)
			}
			writeSSEEvent(w, evt)
			flusher.Flush()
			s.presence.Delivered(req.workspace, req.user)
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeResync sends a resync control event carrying the hub's latest id so
// the consumer resumes from there.
func (s *StudioServer) writeResync(w http.ResponseWriter, workspace string) {
	data, _ := json.Marshal(model.Change{Op: model.ChangeResync, WorkspaceID: workspace, At: s.now().UTC()})
	writeSSEEvent(w, &sseEvent{ID: s.sseHub.lastID.Load(), Topic: ResyncTopic, Data: data})
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}

// broadcastEvent fans a published change out to stream clients.
func (s *StudioServer) broadcastEvent(topic string, event any) {
	if s.sseHub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}
