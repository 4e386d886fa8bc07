package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/studiodesk/internal/model"
)

// streamEvent is one event read off a live stream.
type streamEvent struct {
	ID, Event, Data string
}

// openStream connects to the event stream of serverURL with the given query
// and optional Last-Event-ID. Events arrive on the returned channel until the
// test ends.
func openStream(t *testing.T, serverURL, query, lastID string) <-chan streamEvent {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/v1/events/stream?"+query, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		resp.Body.Close()
		t.Fatalf("Content-Type = %q", ct)
	}

	ch := make(chan streamEvent, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		var cur streamEvent
		for scanner.Scan() {
			field, value, _ := strings.Cut(scanner.Text(), ":")
			switch field {
			case "id":
				cur.ID = value
			case "event":
				cur.Event = value
			case "data":
				cur.Data = value
			case "":
				if cur.Event == "" {
					continue // keepalive comment or blank
				}
				select {
				case ch <- cur:
				case <-ctx.Done():
					return
				}
				cur = streamEvent{}
			}
		}
	}()
	// Let the handler register before the test mutates anything.
	time.Sleep(50 * time.Millisecond)
	return ch
}

// waitForEvent skips events until one with the given topic arrives.
func waitForEvent(t *testing.T, ch <-chan streamEvent, topic string) streamEvent {
	t.Helper()
	timer := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("stream closed before %q", topic)
			}
			if evt.Event == topic {
				return evt
			}
		case <-timer:
			t.Fatalf("timed out waiting for %q", topic)
		}
	}
}

func requireQuiet(t *testing.T, ch <-chan streamEvent) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %q", evt.Event)
	case <-time.After(100 * time.Millisecond):
	}
}

func startIntegrationServer(t *testing.T) string {
	t.Helper()
	_, _, handler := newTestServer(t)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts.URL
}

// call sends body as JSON in workspace ws, checks the status and decodes the
// response into out when out is non-nil.
func call(t *testing.T, method, url, ws string, body any, wantStatus int, out any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWorkspace, ws)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", method, url, resp.StatusCode, wantStatus, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

// requireChange decodes an SSE payload as a row change and checks it.
func requireChange(t *testing.T, evt streamEvent, op model.ChangeOp, rowID string) {
	t.Helper()
	var c model.Change
	if err := json.Unmarshal([]byte(evt.Data), &c); err != nil {
		t.Fatalf("failed to parse SSE data: %v", err)
	}
	if c.Op != op || c.RowID != rowID {
		t.Fatalf("change = %+v, want op=%s row=%s", c, op, rowID)
	}
	if evt.ID == "" {
		t.Fatal("expected SSE event to have a non-empty ID")
	}
}

func TestSSEIntegration_RowLifecycle(t *testing.T) {
	url := startIntegrationServer(t)
	stream := openStream(t, url, "workspace=ws1", "")
	rows := url + "/v1/tables/clients/rows"
	const topic = "studio.changes.ws1.clients"

	var created model.Row
	call(t, http.MethodPost, rows, "ws1", map[string]any{"name": "Ada"}, http.StatusCreated, &created)
	if created.ID() == "" {
		t.Fatal("created row has no id")
	}
	requireChange(t, waitForEvent(t, stream, topic), model.ChangeInsert, created.ID())

	call(t, http.MethodPatch, rows+"/"+created.ID(), "ws1", map[string]any{"status": "active"}, http.StatusOK, nil)
	requireChange(t, waitForEvent(t, stream, topic), model.ChangeUpdate, created.ID())

	call(t, http.MethodDelete, rows+"/"+created.ID(), "ws1", nil, http.StatusNoContent, nil)
	requireChange(t, waitForEvent(t, stream, topic), model.ChangeDelete, created.ID())
}

func TestSSEIntegration_Routing(t *testing.T) {
	url := startIntegrationServer(t)
	all := openStream(t, url, "", "")
	ws1 := openStream(t, url, "workspace=ws1", "")
	tasks := openStream(t, url, "workspace=ws1&topics=studio.changes.ws1.tasks", "")

	call(t, http.MethodPost, url+"/v1/tables/tasks/rows", "ws2", map[string]any{"title": "Hidden"}, http.StatusCreated, nil)
	call(t, http.MethodPost, url+"/v1/tables/clients/rows", "ws1", map[string]any{"name": "Filtered"}, http.StatusCreated, nil)
	var task model.Row
	call(t, http.MethodPost, url+"/v1/tables/tasks/rows", "ws1", map[string]any{"title": "Wanted"}, http.StatusCreated, &task)

	// The unscoped stream sees all three.
	for _, topic := range []string{"studio.changes.ws2.tasks", "studio.changes.ws1.clients", "studio.changes.ws1.tasks"} {
		waitForEvent(t, all, topic)
	}
	if evt := waitForEvent(t, ws1, "studio.changes.ws1.clients"); evt.ID == "" {
		t.Fatal("ws1 stream: event without id")
	}
	requireChange(t, waitForEvent(t, tasks, "studio.changes.ws1.tasks"), model.ChangeInsert, task.ID())
	requireQuiet(t, tasks)
}

func TestSSEIntegration_FailedMutationPublishesNothing(t *testing.T) {
	url := startIntegrationServer(t)
	stream := openStream(t, url, "workspace=ws1", "")

	call(t, http.MethodPatch, url+"/v1/tables/clients/rows/cl-missing", "ws1", map[string]any{"name": "x"}, http.StatusNotFound, nil)
	call(t, http.MethodPost, url+"/v1/tables/clients/rows", "ws1", map[string]any{"salary": 10}, http.StatusBadRequest, nil)
	requireQuiet(t, stream)
}

// A client that reconnects with Last-Event-ID gets what it missed.
func TestSSEIntegration_Reconnect(t *testing.T) {
	url := startIntegrationServer(t)
	first := openStream(t, url, "workspace=ws1", "")

	var a, b model.Row
	call(t, http.MethodPost, url+"/v1/tables/clients/rows", "ws1", map[string]any{"name": "A"}, http.StatusCreated, &a)
	seen := waitForEvent(t, first, "studio.changes.ws1.clients")
	call(t, http.MethodPost, url+"/v1/tables/clients/rows", "ws1", map[string]any{"name": "B"}, http.StatusCreated, &b)

	second := openStream(t, url, "workspace=ws1", seen.ID)
	requireChange(t, waitForEvent(t, second, "studio.changes.ws1.clients"), model.ChangeInsert, b.ID())
	requireQuiet(t, second)

	// An id from before a restart forces a resync.
	third := openStream(t, url, "workspace=ws1", "999")
	var c model.Change
	if err := json.Unmarshal([]byte(waitForEvent(t, third, ResyncTopic).Data), &c); err != nil || c.Op != model.ChangeResync {
		t.Fatalf("resync = %+v, %v", c, err)
	}
}
