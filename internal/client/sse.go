package client

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/studiodesk/internal/events"
)

const (
	sseBuffer         = 64
	sseRetryInterval  = time.Second
	sseMaxLineBytes   = 1024 * 1024
	sseInitialBufSize = 64 * 1024
)

// SSESubscriber implements events.Subscriber over the server's event stream,
// so a list controller talking to a remote server still gets realtime
// invalidation. Dropped connections are retried with Last-Event-ID.
type SSESubscriber struct {
	baseURL    string
	token      string
	workspace  string
	user       string
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.Mutex
	cancel []context.CancelFunc
}

var _ events.Subscriber = (*SSESubscriber)(nil)

// NewSSESubscriber returns a subscriber reading baseURL's event stream as
// workspace.
func NewSSESubscriber(baseURL, token, workspace string, logger *slog.Logger) *SSESubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSESubscriber{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		workspace:  workspace,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// WithUser identifies the subscriber on the server's presence roster.
func (s *SSESubscriber) WithUser(user string) *SSESubscriber {
	s.user = user
	return s
}

// Subscribe streams the data of every event whose topic matches pattern.
// It returns once the first connection is established.
func (s *SSESubscriber) Subscribe(pattern string) (<-chan []byte, func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	resp, err := s.connect(ctx, pattern, "")
	if err != nil {
		cancel()
		return nil, nil, err
	}

	s.mu.Lock()
	s.cancel = append(s.cancel, cancel)
	s.mu.Unlock()

	ch := make(chan []byte, sseBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(ch)
		lastID := ""
		for {
			lastID = s.read(ctx, resp, ch, lastID)
			if ctx.Err() != nil {
				return
			}
			s.logger.Debug("event stream closed, reconnecting", "pattern", pattern, "last_event_id", lastID)
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(sseRetryInterval):
				}
				if resp, err = s.connect(ctx, pattern, lastID); err == nil {
					break
				}
				s.logger.Debug("event stream reconnect failed", "error", err)
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	return ch, stop, nil
}

// streamWorkspace picks the workspace a stream for pattern is scoped to. A
// pattern naming a workspace wins over the subscriber's own, so a controller
// that moved to another workspace is not filtered against the old one.
func (s *SSESubscriber) streamWorkspace(pattern string) string {
	ws, ok := events.PatternWorkspace(pattern)
	if !ok || events.SameWorkspace(s.workspace, ws) {
		return s.workspace
	}
	return ws
}

func (s *SSESubscriber) connect(ctx context.Context, pattern, lastID string) (*http.Response, error) {
	q := url.Values{}
	q.Set("topics", pattern)
	if ws := s.streamWorkspace(pattern); ws != "" {
		q.Set("workspace", ws)
	}
	if s.user != "" {
		q.Set("user", s.user)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/events/stream?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "event stream unavailable"}
	}
	return resp, nil
}

// read forwards events from resp until it ends and returns the last event id
// seen.
func (s *SSESubscriber) read(ctx context.Context, resp *http.Response, ch chan<- []byte, lastID string) string {
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, sseInitialBufSize), sseMaxLineBytes)
	var (
		id   string
		data []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if id != "" {
				lastID = id
			}
			if len(data) > 0 {
				select {
				case ch <- []byte(strings.Join(data, "\n")):
				case <-ctx.Done():
					return lastID
				}
			}
			id, data = "", nil
			continue
		}
		field, value := parseSSEField(line)
		switch field {
		case "id":
			id = value
		case "data":
			data = append(data, value)
		}
	}
	return lastID
}

// parseSSEField splits an event stream line into its field name and value.
// One space after the colon is part of the separator. Comment lines yield an
// empty field.
func parseSSEField(line string) (field, value string) {
	if strings.HasPrefix(line, ":") {
		return "", ""
	}
	field, value, _ = strings.Cut(line, ":")
	return field, strings.TrimPrefix(value, " ")
}

// Close cancels every open subscription.
func (s *SSESubscriber) Close() error {
	s.mu.Lock()
	cancels := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}
