package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
)

// compiler renders query predicates as SQL with $n placeholders. Identifiers
// come from the model allow-list and are quoted; values are always bound.
type compiler struct {
	table model.Table
	args  []any
}

func (c *compiler) arg(v any) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", len(c.args))
}

func ident(s string) string {
	return pq.QuoteIdentifier(s)
}

func (c *compiler) col(name string) string {
	return ident(string(c.table)) + "." + ident(name)
}

// selectList returns the quoted column list of t.
func selectList(t model.Table) string {
	cols := model.Columns(t)
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = ident(col)
	}
	return strings.Join(quoted, ", ")
}

// where renders preds ANDed together, or "" when there are none.
func (c *compiler) where(preds []query.Predicate) (string, error) {
	if len(preds) == 0 {
		return "", nil
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		sql, err := c.pred(p)
		if err != nil {
			return "", err
		}
		parts[i] = sql
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func (c *compiler) pred(p query.Predicate) (string, error) {
	switch p.Op {
	case query.OpEq:
		if p.Value == nil {
			return c.col(p.Column) + " IS NULL", nil
		}
		return c.col(p.Column) + " = " + c.arg(p.Value), nil
	case query.OpIn:
		placeholders := make([]string, len(p.Values))
		for i, v := range p.Values {
			placeholders[i] = c.arg(v)
		}
		return c.col(p.Column) + " IN (" + strings.Join(placeholders, ", ") + ")", nil
	case query.OpILike:
		return c.col(p.Column) + "::text ILIKE " + c.arg(likePattern(p.Value)), nil
	case query.OpIsNull:
		return c.col(p.Column) + " IS NULL", nil
	case query.OpGte:
		return c.col(p.Column) + " >= " + c.arg(p.Value), nil
	case query.OpLt:
		return c.col(p.Column) + " < " + c.arg(p.Value), nil
	case query.OpOr, query.OpAnd:
		parts := make([]string, len(p.Args))
		for i, a := range p.Args {
			sql, err := c.pred(a)
			if err != nil {
				return "", err
			}
			parts[i] = sql
		}
		sep := " AND "
		if p.Op == query.OpOr {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")", nil
	case query.OpRelatedILike:
		rel := ident(string(p.Relation))
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s r WHERE r.%s = %s AND r.%s = %s AND r.%s::text ILIKE %s)",
			rel,
			ident("id"), c.col(p.ForeignKey),
			ident("workspace_id"), c.col("workspace_id"),
			ident(p.Column), c.arg(likePattern(p.Value)),
		), nil
	}
	return "", fmt.Errorf("unsupported operator %q", p.Op)
}

// orderBy renders the sort with id as a tiebreaker so pages are stable.
func (c *compiler) orderBy(o *query.Order) string {
	if o == nil {
		return " ORDER BY " + c.col("created_at") + " ASC, " + c.col("id") + " ASC"
	}
	dir := "ASC"
	if o.Desc {
		dir = "DESC"
	}
	return " ORDER BY " + c.col(o.Column) + " " + dir + ", " + c.col("id") + " ASC"
}

// likePattern wraps term for a contains match, escaping LIKE metacharacters.
func likePattern(term any) string {
	s := fmt.Sprint(term)
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}
