package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/store/memory"
)

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	ms := memory.New()
	for table, rows := range map[model.Table][]model.Row{
		model.TableClients: {
			{"id": "cl-b", "workspace_id": "ws1", "name": "Second", "created_at": "2026-10-02T00:00:00Z"},
			{"id": "cl-a", "workspace_id": "ws1", "name": "First", "created_at": "2026-10-01T00:00:00Z"},
		},
		model.TableTasks: {
			{"id": "tk-1", "workspace_id": "ws2", "title": "Cull", "created_at": "2026-10-03T00:00:00Z"},
		},
	} {
		for _, r := range rows {
			if err := ms.Put(table, r); err != nil {
				t.Fatalf("seed %s: %v", table, err)
			}
		}
	}
	return ms
}

func TestExportJSONL_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), memory.New(), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != "1" || h.Type != "header" || len(h.Counts) != len(model.Tables()) {
		t.Fatalf("unexpected header: %+v", h)
	}
	for table, n := range h.Counts {
		if n != 0 {
			t.Errorf("count[%s] = %d, want 0", table, n)
		}
	}
}

func TestExportJSONL_Rows(t *testing.T) {
	ms := seedStore(t)

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	// 1 header + 2 clients + 1 task
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), buf.String())
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Counts["clients"] != 2 || h.Counts["tasks"] != 1 || h.Counts["events"] != 0 {
		t.Fatalf("header counts: %v", h.Counts)
	}

	var got []string
	for _, line := range lines[1:] {
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("unmarshal record: %v", err)
		}
		if rec.Type != "row" {
			t.Fatalf("expected row type, got %q", rec.Type)
		}
		got = append(got, string(rec.Table)+"/"+rec.Data.ID())
	}
	// Tables in model order, rows oldest first.
	want := []string{"clients/cl-a", "clients/cl-b", "tasks/tk-1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

type failingSource struct{}

func (failingSource) All(context.Context, model.Table) ([]model.Row, error) {
	return nil, errors.New("db down")
}

func TestExportJSONL_SourceError(t *testing.T) {
	var buf bytes.Buffer
	err := ExportJSONL(context.Background(), failingSource{}, &buf)
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected source error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %q", buf.String())
	}
}

func TestImportJSONL_RoundTrip(t *testing.T) {
	src := seedStore(t)
	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), src, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := memory.New()
	n, err := ImportJSONL(&buf, dst)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 3 {
		t.Fatalf("imported %d rows, want 3", n)
	}

	for _, table := range model.Tables() {
		want, _ := src.All(context.Background(), table)
		got, _ := dst.All(context.Background(), table)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", table, diff)
		}
	}
}

func TestImportJSONL_Errors(t *testing.T) {
	for name, tc := range map[string]struct {
		input string
		want  string
	}{
		"BadJSON":      {`{"type":`, "line 1"},
		"BadVersion":   {`{"type":"header","version":"9"}`, "unsupported export version"},
		"UnknownTable": {`{"type":"row","table":"users","data":{"id":"u-1"}}`, "unknown table"},
		"MissingID":    {`{"type":"row","table":"clients","data":{"name":"x"}}`, "no id"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ImportJSONL(strings.NewReader(tc.input), memory.New())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestImportJSONL_SkipsUnknownRecords(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"header","version":"1"}`,
		``,
		`{"type":"comment","data":{"id":"x"}}`,
		`{"type":"row","table":"clients","data":{"id":"cl-1","workspace_id":"ws1"}}`,
	}, "\n")
	n, err := ImportJSONL(strings.NewReader(input), memory.New())
	if err != nil || n != 1 {
		t.Fatalf("ImportJSONL = %d, %v; want 1, nil", n, err)
	}
}

func nonEmptyLines(s string) []string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
