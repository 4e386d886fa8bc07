package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/studiodesk/internal/model"
)

// formatVersion is written in every export header.
const formatVersion = "1"

// maxLineBytes bounds a single JSONL record on import.
const maxLineBytes = 16 * 1024 * 1024

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version   string         `json:"version"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Counts    map[string]int `json:"counts"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type  string      `json:"type"`
	Table model.Table `json:"table"`
	Data  model.Row   `json:"data"`
}

// Source is the read side of a store used by export.
type Source interface {
	All(ctx context.Context, table model.Table) ([]model.Row, error)
}

// Sink accepts imported rows as-is.
type Sink interface {
	Put(table model.Table, row model.Row) error
}

// ExportJSONL writes every row of every table as JSONL to w. Tables are
// written in model.Tables order and rows in the order the source returns
// them (oldest first).
func ExportJSONL(ctx context.Context, s Source, w io.Writer) error {
	tables := model.Tables()
	rows := make(map[model.Table][]model.Row, len(tables))
	counts := make(map[string]int, len(tables))
	for _, t := range tables {
		rs, err := s.All(ctx, t)
		if err != nil {
			return fmt.Errorf("list %s: %w", t, err)
		}
		rows[t] = rs
		counts[string(t)] = len(rs)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:   formatVersion,
		Type:      "header",
		Timestamp: time.Now().UTC(),
		Counts:    counts,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, t := range tables {
		for _, r := range rows[t] {
			if err := enc.Encode(record{Type: "row", Table: t, Data: r}); err != nil {
				return fmt.Errorf("encode %s row %s: %w", t, r.ID(), err)
			}
		}
	}

	return nil
}

// ImportJSONL reads an export written by ExportJSONL into dst and returns
// the number of rows imported. Unknown record types are skipped.
func ImportJSONL(r io.Reader, dst Sink) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	n, line := 0, 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec struct {
			Type    string      `json:"type"`
			Version string      `json:"version"`
			Table   model.Table `json:"table"`
			Data    model.Row   `json:"data"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		switch rec.Type {
		case "header":
			if rec.Version != formatVersion {
				return n, fmt.Errorf("line %d: unsupported export version %q", line, rec.Version)
			}
		case "row":
			if err := dst.Put(rec.Table, rec.Data); err != nil {
				return n, fmt.Errorf("line %d: %w", line, err)
			}
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read export: %w", err)
	}
	return n, nil
}
