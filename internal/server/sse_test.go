package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/presence"
)

const (
	topicClientsWS1 = "studio.changes.ws1.clients"
	topicTasksWS1   = "studio.changes.ws1.tasks"
	topicClientsWS2 = "studio.changes.ws2.clients"
)

func recvEvent(t *testing.T, c *sseClient) *sseEvent {
	t.Helper()
	select {
	case evt := <-c.ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func requireNoEvent(t *testing.T, c *sseClient) {
	t.Helper()
	select {
	case evt := <-c.ch:
		t.Fatalf("unexpected event: topic=%q", evt.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHub_Routing(t *testing.T) {
	for _, tc := range []struct {
		name      string
		workspace string
		topics    []string
		want      string
	}{
		{"AllTopics", "", nil, topicClientsWS2},
		{"Pattern", "", []string{"studio.changes.*.tasks"}, topicTasksWS1},
		// A wildcard pattern does not widen the client past its workspace.
		{"Workspace", "ws1", []string{"studio.changes.*.clients"}, topicClientsWS1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			hub := newSSEHub(10)
			c := hub.subscribe(tc.workspace, tc.topics)
			defer hub.unsubscribe(c)

			for _, topic := range []string{topicClientsWS2, topicClientsWS1, topicTasksWS1} {
				hub.broadcast(topic, []byte(`{"row_id":"cl-1"}`))
			}
			evt := recvEvent(t, c)
			if evt.Topic != tc.want {
				t.Fatalf("first event topic = %q, want %q", evt.Topic, tc.want)
			}
			if string(evt.Data) != `{"row_id":"cl-1"}` {
				t.Fatalf("data = %q", evt.Data)
			}
			if tc.name != "AllTopics" {
				requireNoEvent(t, c)
			}
		})
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := newSSEHub(10)
	c := hub.subscribe("", nil)
	hub.unsubscribe(c)
	hub.broadcast(topicClientsWS1, []byte(`{}`))
	requireNoEvent(t, c)
}

func TestSSEHub_LaggedClient(t *testing.T) {
	hub := newSSEHub(10)
	c := hub.subscribe("", nil)
	defer hub.unsubscribe(c)

	for range sseClientBuffer + 1 {
		hub.broadcast(topicClientsWS1, []byte(`{}`))
	}
	if !c.lagged.Load() {
		t.Fatal("client should be marked lagged after overflow")
	}
}

func eventIDs(evts []sseEvent) []uint64 {
	out := make([]uint64, len(evts))
	for i, e := range evts {
		out[i] = e.ID
	}
	return out
}

func TestSSEHub_EventsSince(t *testing.T) {
	hub := newSSEHub(5)
	if evts, complete := hub.eventsSince(0); len(evts) != 0 || !complete {
		t.Fatalf("empty hub = %v, %v", evts, complete)
	}

	for range 8 {
		hub.broadcast(topicClientsWS1, []byte(`{}`))
	}
	for _, tc := range []struct {
		lastID   uint64
		want     []uint64
		complete bool
	}{
		{lastID: 6, want: []uint64{7, 8}, complete: true},
		{lastID: 3, want: []uint64{4, 5, 6, 7, 8}, complete: true},
		{lastID: 8, want: []uint64{}, complete: true},
		// Event 3 was evicted.
		{lastID: 2, want: []uint64{4, 5, 6, 7, 8}, complete: false},
		// Ahead of the hub: the server restarted.
		{lastID: 42, want: []uint64{}, complete: false},
	} {
		evts, complete := hub.eventsSince(tc.lastID)
		if got := eventIDs(evts); fmt.Sprint(got) != fmt.Sprint(tc.want) || complete != tc.complete {
			t.Errorf("eventsSince(%d) = %v, %v; want %v, %v", tc.lastID, got, complete, tc.want, tc.complete)
		}
	}
}

// streamFor runs the event stream handler until stop is called and returns
// the recorded body.
func streamFor(t *testing.T, handler http.Handler, path string, headers ...string) (stop func() string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", path, nil).WithContext(ctx)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(rec, req)
	}()
	t.Cleanup(cancel)

	// Give the handler time to register the subscription.
	time.Sleep(50 * time.Millisecond)

	return func() string {
		time.Sleep(50 * time.Millisecond)
		cancel()
		<-done
		if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
			t.Fatalf("expected Content-Type=text/event-stream, got %q", ct)
		}
		return rec.Body.String()
	}
}

func TestHandleEventStream_SSE(t *testing.T) {
	srv, _, handler := newTestServer(t)

	stop := streamFor(t, handler, "/v1/events/stream")
	srv.sseHub.broadcast(topicClientsWS1, []byte(`{"row_id":"cl-sse1"}`))
	body := stop()

	if !strings.Contains(body, "event:"+topicClientsWS1) {
		t.Fatalf("expected event:%s in body, got:\n%s", topicClientsWS1, body)
	}
	if !strings.Contains(body, `data:{"row_id":"cl-sse1"}`) {
		t.Fatalf("expected data with cl-sse1 in body, got:\n%s", body)
	}
}

func TestHandleEventStream_TopicFilter(t *testing.T) {
	srv, _, handler := newTestServer(t)

	stop := streamFor(t, handler, "/v1/events/stream?topics=studio.changes.*.tasks")
	srv.sseHub.broadcast(topicClientsWS1, []byte(`{}`))
	srv.sseHub.broadcast(topicTasksWS1, []byte(`{}`))
	body := stop()

	if strings.Contains(body, topicClientsWS1) {
		t.Fatalf("expected clients event to be filtered out, got:\n%s", body)
	}
	if !strings.Contains(body, topicTasksWS1) {
		t.Fatalf("expected tasks event in body, got:\n%s", body)
	}
}

func TestHandleEventStream_WorkspaceScope(t *testing.T) {
	for name, path := range map[string]string{
		"Header": "/v1/events/stream",
		"Query":  "/v1/events/stream?workspace=ws2",
	} {
		t.Run(name, func(t *testing.T) {
			srv, _, handler := newTestServer(t)

			var headers []string
			if name == "Header" {
				headers = []string{HeaderWorkspace, "ws2"}
			}
			stop := streamFor(t, handler, path, headers...)
			srv.sseHub.broadcast(topicClientsWS1, []byte(`{}`))
			srv.sseHub.broadcast(topicClientsWS2, []byte(`{}`))
			body := stop()

			if strings.Contains(body, topicClientsWS1) {
				t.Fatalf("expected ws1 event to be filtered out, got:\n%s", body)
			}
			if !strings.Contains(body, topicClientsWS2) {
				t.Fatalf("expected ws2 event in body, got:\n%s", body)
			}
		})
	}
}

func TestHandleEventStream_LastEventID(t *testing.T) {
	srv, _, handler := newTestServer(t)

	srv.sseHub.broadcast(topicClientsWS1, []byte(`{"n":1}`))
	srv.sseHub.broadcast(topicClientsWS1, []byte(`{"n":2}`))
	srv.sseHub.broadcast(topicClientsWS2, []byte(`{"n":3}`))
	srv.sseHub.broadcast(topicClientsWS1, []byte(`{"n":4}`))

	// Replay skips event 1 and the other workspace's event 3.
	body := streamFor(t, handler, "/v1/events/stream", "Last-Event-ID", "1", HeaderWorkspace, "ws1")()

	for _, want := range []string{`data:{"n":2}`, `data:{"n":4}`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in body, got:\n%s", want, body)
		}
	}
	for _, skip := range []string{`data:{"n":1}`, `data:{"n":3}`} {
		if strings.Contains(body, skip) {
			t.Fatalf("expected %s to be skipped, got:\n%s", skip, body)
		}
	}
}

func TestHandleEventStream_PublishChange(t *testing.T) {
	srv, _, handler := newTestServer(t)

	stop := streamFor(t, handler, "/v1/events/stream", HeaderWorkspace, "ws1")
	srv.publishChange(context.Background(), model.ChangeUpdate, model.TableClients, "ws1", "cl-7")
	body := stop()

	if !strings.Contains(body, "event:"+topicClientsWS1) {
		t.Fatalf("expected change event, got:\n%s", body)
	}
	if !strings.Contains(body, `"row_id":"cl-7"`) {
		t.Fatalf("expected row id in payload, got:\n%s", body)
	}
}

func TestHandleEventStream_MultipleClients(t *testing.T) {
	srv, _, handler := newTestServer(t)

	stop1 := streamFor(t, handler, "/v1/events/stream")
	stop2 := streamFor(t, handler, "/v1/events/stream")
	srv.sseHub.broadcast(topicClientsWS1, []byte(`{}`))

	for i, body := range []string{stop1(), stop2()} {
		if !strings.Contains(body, topicClientsWS1) {
			t.Fatalf("client %d: expected event, got:\n%s", i+1, body)
		}
	}
}

// TestSSEEventFormat verifies the exact SSE wire format.
func TestSSEEventFormat(t *testing.T) {
	srv, _, handler := newTestServer(t)

	stop := streamFor(t, handler, "/v1/events/stream")
	srv.sseHub.broadcast(topicClientsWS1, []byte(`{"row_id":"cl-fmt"}`))
	body := stop()

	scanner := bufio.NewScanner(strings.NewReader(body))
	var id, event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id:"):
			id = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		}
	}

	if id != "1" {
		t.Fatalf("expected id=1, got %q", id)
	}
	if event != topicClientsWS1 {
		t.Fatalf("expected event=%s, got %q", topicClientsWS1, event)
	}
	if !json.Valid([]byte(data)) {
		t.Fatalf("expected valid JSON data, got %q", data)
	}
	if data != `{"row_id":"cl-fmt"}` {
		t.Fatalf("expected data=%q, got %q", `{"row_id":"cl-fmt"}`, data)
	}
}

func TestHandleEventStream_Presence(t *testing.T) {
	srv, _, handler := newTestServer(t)

	stop := streamFor(t, handler, "/v1/events/stream?user=alice", HeaderWorkspace, "ws1")

	rec := doJSON(t, handler, http.MethodGet, "/v1/presence", nil, HeaderWorkspace, "ws1")
	requireStatus(t, rec, http.StatusOK)
	var resp struct {
		Viewers []presence.Viewer `json:"viewers"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Viewers) != 1 || resp.Viewers[0].User != "alice" || !resp.Viewers[0].Online {
		t.Fatalf("viewers = %+v", resp.Viewers)
	}

	// Other workspaces do not see the viewer.
	rec = doJSON(t, handler, http.MethodGet, "/v1/presence", nil, HeaderWorkspace, "ws2")
	requireStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec, &resp)
	if len(resp.Viewers) != 0 {
		t.Fatalf("ws2 viewers = %+v", resp.Viewers)
	}

	srv.sseHub.broadcast(topicClientsWS1, []byte(`{}`))
	stop()

	roster := srv.Presence().Roster("ws1")
	if len(roster) != 1 || roster[0].Online || roster[0].Events != 1 {
		t.Fatalf("after disconnect: %+v", roster)
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/presence", nil)
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestHandleEventStream_ResyncAfterGap(t *testing.T) {
	srv, _, handler := newTestServer(t)
	srv.sseHub = newSSEHub(2)
	for range 4 {
		srv.sseHub.broadcast(topicClientsWS1, []byte(`{}`))
	}

	body := streamFor(t, handler, "/v1/events/stream", "Last-Event-ID", "1", HeaderWorkspace, "ws1")()
	if !strings.Contains(body, "id:4\nevent:"+ResyncTopic+"\n") {
		t.Fatalf("expected resync event, got:\n%s", body)
	}
	if !strings.Contains(body, `"op":"RESYNC"`) || !strings.Contains(body, `"workspace_id":"ws1"`) {
		t.Fatalf("resync payload missing fields:\n%s", body)
	}
	if strings.Contains(body, "event:"+topicClientsWS1) {
		t.Fatalf("no replay expected after a gap, got:\n%s", body)
	}
}
