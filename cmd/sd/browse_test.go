package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alfredjeanlab/studiodesk/internal/listing"
	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/store/memory"
	"github.com/alfredjeanlab/studiodesk/internal/ui"
)

func newTestBrowser(t *testing.T) (*browser, *bytes.Buffer) {
	t.Helper()
	ui.ForceNoColor()

	ms := memory.New()
	for _, r := range []model.Row{
		{"id": "cl-1", "workspace_id": "ws1", "name": "Ada", "status": "lead", "created_at": "2026-10-01T00:00:00Z"},
		{"id": "cl-2", "workspace_id": "ws1", "name": "Bo", "status": "active", "created_at": "2026-10-02T00:00:00Z"},
		{"id": "cl-3", "workspace_id": "ws1", "name": "Cy", "status": "lead", "created_at": "2026-10-03T00:00:00Z"},
		{"id": "cl-4", "workspace_id": "ws2", "name": "Di", "status": "lead", "created_at": "2026-10-04T00:00:00Z"},
	} {
		if err := ms.Put(model.TableClients, r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	var out bytes.Buffer
	b := &browser{out: &out}
	ctrl, err := listing.New(listing.Clients, ms, listing.Options{
		Scope:    model.Scope{WorkspaceID: "ws1", Role: model.RoleOwner},
		Notify:   b.notify,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("listing.New: %v", err)
	}
	t.Cleanup(func() { ctrl.Close() })
	b.ctrl = ctrl
	ctrl.Wait()
	return b, &out
}

func rowIDs(rows []model.Row) string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID()
	}
	return strings.Join(ids, ",")
}

func TestBrowserExec(t *testing.T) {
	b, _ := newTestBrowser(t)

	steps := []struct {
		line    string
		wantErr bool
		ids     string
		total   int
	}{
		{line: "", ids: "cl-3,cl-2", total: 3},
		{line: "f lead", ids: "cl-3,cl-1", total: 2},
		{line: "f nope", wantErr: true, ids: "cl-3,cl-1", total: 2},
		{line: "s name", ids: "cl-3,cl-1", total: 2},
		{line: "d", ids: "cl-1,cl-3", total: 2},
		{line: "/cy", ids: "cl-3", total: 1},
		{line: "x", ids: "cl-1,cl-3", total: 2},
		{line: "f", ids: "cl-1,cl-2", total: 3},
		{line: "n", ids: "cl-1,cl-2,cl-3", total: 3},
		{line: "n", wantErr: true, ids: "cl-1,cl-2,cl-3", total: 3},
		{line: "z 1", ids: "cl-1", total: 3},
		{line: "p 3", ids: "cl-3", total: 3},
		{line: "p zero", wantErr: true, ids: "cl-3", total: 3},
		{line: "r", ids: "cl-1", total: 3},
		{line: "bogus", wantErr: true, ids: "cl-1", total: 3},
	}
	for _, s := range steps {
		quit, err := b.exec(s.line)
		if quit {
			t.Fatalf("%q: unexpected quit", s.line)
		}
		if (err != nil) != s.wantErr {
			t.Fatalf("%q: err = %v, wantErr %v", s.line, err, s.wantErr)
		}
		if got := rowIDs(b.ctrl.Rows()); got != s.ids {
			t.Fatalf("%q: rows = %s, want %s", s.line, got, s.ids)
		}
		if st := b.ctrl.State(); st.Total != s.total {
			t.Fatalf("%q: total = %d, want %d", s.line, st.Total, s.total)
		}
	}

	if quit, _ := b.exec("q"); !quit {
		t.Fatal("q did not quit")
	}
}

func TestBrowserRender(t *testing.T) {
	b, out := newTestBrowser(t)
	if _, err := b.exec("f lead"); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	b.render()

	got := out.String()
	for _, want := range []string{"clients", "filters lead", "sort newest desc", "Ada", "Cy", "page 1/1, showing 2 of 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("render missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Di") {
		t.Errorf("render leaked another workspace:\n%s", got)
	}
}

func TestBrowserRun(t *testing.T) {
	b, out := newTestBrowser(t)
	if err := b.run(context.Background(), strings.NewReader("/ada\nq\n")); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, `search "ada"`) || !strings.Contains(got, "showing 1 of 1") {
		t.Errorf("run output:\n%s", got)
	}
}
