// Package memory implements store.Store in process memory. Predicates are
// evaluated in Go with the same semantics as the SQL the postgres store
// generates; it backs `sd serve --memory` and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/studiodesk/internal/idgen"
	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
	"github.com/alfredjeanlab/studiodesk/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu     sync.RWMutex
	tables map[model.Table]map[string]model.Row
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{tables: make(map[model.Table]map[string]model.Row), now: time.Now}
}

// SetClock replaces the timestamp source. Tests use it to get distinct,
// ordered created_at values.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Fetch(ctx context.Context, q query.Query) (*query.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.match(q)
	if q.Order != nil {
		sortRows(matched, q.Order.Column, q.Order.Desc)
	} else {
		sortRows(matched, "created_at", false)
	}

	page := &query.Page{Total: len(matched)}
	rows := matched
	if r := q.Range; r != nil {
		if r.From >= len(rows) {
			rows = nil
		} else {
			rows = rows[r.From:min(r.To+1, len(rows))]
		}
	}
	page.Rows = make([]model.Row, len(rows))
	for i, row := range rows {
		page.Rows[i] = row.Clone()
	}
	if !q.Count {
		page.Total = len(page.Rows)
	}
	return page, nil
}

func (s *Store) Pluck(ctx context.Context, q query.Query, column string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if !model.HasColumn(q.Table, column) {
		return nil, fmt.Errorf("pluck: unknown column %q", column)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, row := range s.match(q) {
		if row[column] == nil {
			continue
		}
		v := row.String(column)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table model.Table, workspaceID string, row model.Row) (model.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := model.ValidateRow(table, row, true); err != nil {
		return nil, err
	}
	id, err := idgen.ForTable(table)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	stored := row.Clone()
	stored["id"] = id
	stored["workspace_id"] = workspaceID
	stored["created_at"] = now
	stored["updated_at"] = now

	t := s.tables[table]
	if t == nil {
		t = make(map[string]model.Row)
		s.tables[table] = t
	}
	t[id] = stored
	return stored.Clone(), nil
}

// Put stores row as-is, keeping its id and timestamps. It is used to seed
// fixtures and to import exported rows.
func (s *Store) Put(table model.Table, row model.Row) error {
	if err := model.ValidateRow(table, row, false); err != nil {
		return err
	}
	if row.ID() == "" {
		return fmt.Errorf("put %s: row has no id", table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[table]
	if t == nil {
		t = make(map[string]model.Row)
		s.tables[table] = t
	}
	t[row.ID()] = row.Clone()
	return nil
}

func (s *Store) Update(ctx context.Context, table model.Table, workspaceID, id string, patch model.Row) (model.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := model.ValidateRow(table, patch, true); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tables[table][id]
	if !ok || row.String("workspace_id") != workspaceID {
		return nil, store.ErrNotFound
	}
	for k, v := range patch {
		row[k] = v
	}
	row["updated_at"] = s.now().UTC()
	return row.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, table model.Table, workspaceID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !table.IsValid() {
		return fmt.Errorf("unknown table %q", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tables[table][id]
	if !ok || row.String("workspace_id") != workspaceID {
		return store.ErrNotFound
	}
	delete(s.tables[table], id)
	return nil
}

func (s *Store) All(ctx context.Context, table model.Table) ([]model.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !table.IsValid() {
		return nil, fmt.Errorf("unknown table %q", table)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]model.Row, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		rows = append(rows, row.Clone())
	}
	sortRows(rows, "created_at", false)
	return rows, nil
}

func (s *Store) Close() error { return nil }

// match returns the rows of q.Table satisfying every predicate. The caller
// holds s.mu.
func (s *Store) match(q query.Query) []model.Row {
	var out []model.Row
	for _, row := range s.tables[q.Table] {
		if s.all(row, q.Where) {
			out = append(out, row)
		}
	}
	return out
}

func (s *Store) all(row model.Row, preds []query.Predicate) bool {
	for _, p := range preds {
		if !s.eval(row, p) {
			return false
		}
	}
	return true
}

func (s *Store) eval(row model.Row, p query.Predicate) bool {
	switch p.Op {
	case query.OpEq:
		if p.Value == nil {
			return row[p.Column] == nil
		}
		return equal(row[p.Column], p.Value)
	case query.OpIn:
		for _, v := range p.Values {
			if equal(row[p.Column], v) {
				return true
			}
		}
		return false
	case query.OpILike:
		return containsFold(row, p.Column, p.Value)
	case query.OpIsNull:
		return row[p.Column] == nil
	case query.OpGte:
		c, ok := compare(row[p.Column], p.Value)
		return ok && c >= 0
	case query.OpLt:
		c, ok := compare(row[p.Column], p.Value)
		return ok && c < 0
	case query.OpOr:
		for _, a := range p.Args {
			if s.eval(row, a) {
				return true
			}
		}
		return false
	case query.OpAnd:
		return s.all(row, p.Args)
	case query.OpRelatedILike:
		ref := row.String(p.ForeignKey)
		if ref == "" {
			return false
		}
		related, ok := s.tables[p.Relation][ref]
		if !ok || related.String("workspace_id") != row.String("workspace_id") {
			return false
		}
		return containsFold(related, p.Column, p.Value)
	}
	return false
}

func containsFold(row model.Row, col string, term any) bool {
	if row[col] == nil {
		return false
	}
	return strings.Contains(strings.ToLower(row.String(col)), strings.ToLower(fmt.Sprint(term)))
}
