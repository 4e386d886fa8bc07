package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
)

// DateLayout is the format of date columns and of Env.Today.
const DateLayout = "2006-01-02"

// NoMatchID is substituted for an empty staff-role join result so that the
// constrained query matches nothing instead of everything.
var NoMatchID = uuid.Nil.String()

// ErrPageOutOfRange is returned by Build when the requested page is negative
// or its row window does not fit in an int.
var ErrPageOutOfRange = errors.New("listing: page out of range")

// Params is the per-fetch input of the translator.
type Params struct {
	Search   string   // applied search term; blank means no search
	Filters  []string // active filter keys, any order
	SortKey  string
	Desc     bool
	Page     int
	PageSize int
}

// Translator turns a FilterConfig plus Params into a backend query.
type Translator struct {
	cfg     *FilterConfig
	backend query.Backend
	logger  *slog.Logger
	now     func() time.Time
}

// NewTranslator returns a translator for cfg. The backend is only used for
// the staff-role join lookup.
func NewTranslator(cfg *FilterConfig, backend query.Backend, logger *slog.Logger, now func() time.Time) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Translator{cfg: cfg, backend: backend, logger: logger, now: now}
}

// Build composes the query for one fetch. All clauses are ANDed: scope,
// staff-role join, status, search, then filters.
func (t *Translator) Build(ctx context.Context, scope model.Scope, p Params) (query.Query, error) {
	size := p.PageSize
	if size <= 0 {
		size = t.cfg.PageSize
	}
	if p.Page < 0 || p.Page > (math.MaxInt-size)/size {
		return query.Query{}, fmt.Errorf("%w: page %d with size %d", ErrPageOutOfRange, p.Page, size)
	}

	now := t.now()
	env := Env{Scope: scope, Now: now, Today: now.Format(DateLayout)}

	var (
		roles    []any
		statuses = make(map[Status]bool)
		columns  = make(map[string][]any)
		custom   []FilterOption
	)
	for _, key := range dedupe(p.Filters) {
		opt, ok := t.cfg.option(key)
		if !ok {
			t.logger.Debug("ignoring unknown filter key", "list", t.cfg.Name, "key", key)
			continue
		}
		switch opt.Kind {
		case KindColumn:
			columns[opt.Column] = append(columns[opt.Column], opt.Value)
		case KindCustom:
			custom = append(custom, opt)
		case KindStaffRole:
			roles = append(roles, opt.Role)
		case KindStatus:
			statuses[opt.Status] = true
		}
	}

	q := query.Query{Table: t.cfg.Table, Count: true}
	q.Where = append(q.Where, t.scopeClause(scope)...)

	if len(roles) > 0 && t.cfg.StaffJoin != nil {
		pred, err := t.staffJoin(ctx, scope, roles)
		if err != nil {
			return query.Query{}, err
		}
		q.Where = append(q.Where, pred)
	}

	if t.cfg.Status != nil {
		q.Where = append(q.Where, t.cfg.Status.Predicates(statuses, env.Today)...)
	}

	if pred, ok := t.searchClause(p.Search); ok {
		q.Where = append(q.Where, pred)
	}

	cols := make([]string, 0, len(columns))
	for col := range columns {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		q.Where = append(q.Where, query.In(col, columns[col]...))
	}
	for _, opt := range custom {
		q.Where = append(q.Where, opt.Build(env))
	}

	if _, col := t.cfg.sortColumn(p.SortKey); col != "" {
		q.Order = &query.Order{Column: col, Desc: p.Desc}
	}

	from := p.Page * size
	q.Range = &query.Range{From: from, To: from + size - 1}
	return q, nil
}

func (t *Translator) scopeClause(scope model.Scope) []query.Predicate {
	out := []query.Predicate{query.Eq("workspace_id", scope.WorkspaceID)}
	if scope.Role.Elevated() {
		return out
	}
	switch t.cfg.Visibility {
	case VisibilityAssigned:
		out = append(out, query.Eq("assigned_to", scope.UserID))
	case VisibilityAssignedOrFreelancer:
		if scope.FreelancerID != "" {
			out = append(out, query.Or(
				query.Eq("assigned_to", scope.UserID),
				query.Eq("freelancer_id", scope.FreelancerID),
			))
		} else {
			out = append(out, query.Eq("assigned_to", scope.UserID))
		}
	}
	return out
}

func (t *Translator) staffJoin(ctx context.Context, scope model.Scope, roles []any) (query.Predicate, error) {
	sj := t.cfg.StaffJoin
	lookup := query.Query{
		Table: sj.Table,
		Where: []query.Predicate{
			query.Eq("workspace_id", scope.WorkspaceID),
			query.In(sj.RoleColumn, roles...),
		},
	}
	ids, err := t.backend.Pluck(ctx, lookup, sj.ParentColumn)
	if err != nil {
		return query.Predicate{}, fmt.Errorf("staff role lookup on %s: %w", sj.Table, err)
	}
	if len(ids) == 0 {
		return query.In("id", NoMatchID), nil
	}
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	return query.In("id", vals...), nil
}

func (t *Translator) searchClause(term string) (query.Predicate, bool) {
	term = SanitizeSearch(term)
	if term == "" {
		return query.Predicate{}, false
	}
	args := make([]query.Predicate, 0, len(t.cfg.SearchColumns)+1)
	for _, col := range t.cfg.SearchColumns {
		args = append(args, query.ILike(col, term))
	}
	if rs := t.cfg.RelatedSearch; rs != nil {
		args = append(args, query.RelatedILike(rs.Relation, rs.ForeignKey, rs.Column, term))
	}
	if len(args) == 0 {
		return query.Predicate{}, false
	}
	return query.Or(args...), true
}

// SanitizeSearch replaces characters that break backend filter syntax
// (comma and parentheses) with spaces and trims the result.
func SanitizeSearch(term string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')':
			return ' '
		}
		return r
	}, term))
}

// dedupe returns keys sorted and without duplicates, so the active set's
// order never affects the query.
func dedupe(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
