// Package query describes backend read requests as plain data: a table,
// a predicate tree, an ordering and a closed row window. Descriptions are
// JSON-serialisable so the same value can be executed locally or sent to
// a remote backend.
package query

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/studiodesk/internal/model"
)

// Op is a predicate operator.
type Op string

const (
	OpEq           Op = "eq"
	OpIn           Op = "in"
	OpILike        Op = "ilike" // case-insensitive substring match
	OpIsNull       Op = "is_null"
	OpGte          Op = "gte"
	OpLt           Op = "lt"
	OpOr           Op = "or"
	OpAnd          Op = "and"
	OpRelatedILike Op = "related_ilike" // ilike on a related table's column through a foreign key
)

// Predicate is one node of a WHERE tree. Which fields are meaningful depends
// on Op: leaf ops use Column and Value/Values, or/and use Args, and
// related_ilike additionally uses Relation and ForeignKey.
type Predicate struct {
	Op         Op          `json:"op"`
	Column     string      `json:"column,omitempty"`
	Value      any         `json:"value,omitempty"`
	Values     []any       `json:"values,omitempty"`
	Args       []Predicate `json:"args,omitempty"`
	Relation   model.Table `json:"relation,omitempty"`
	ForeignKey string      `json:"foreign_key,omitempty"`
}

// Order is a single-column sort.
type Order struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

// Range is a closed row interval [From, To].
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Limit returns the number of rows covered by the range.
func (r Range) Limit() int {
	return r.To - r.From + 1
}

// Query is a complete read request against one table. All Where predicates
// are ANDed.
type Query struct {
	Table model.Table `json:"table"`
	Where []Predicate `json:"where,omitempty"`
	Order *Order      `json:"order,omitempty"`
	Range *Range      `json:"range,omitempty"`
	Count bool        `json:"count,omitempty"` // also report the total matching row count
}

// Page is one window of rows plus the total number of matching rows.
type Page struct {
	Rows  []model.Row `json:"rows"`
	Total int         `json:"total"`
}

// Backend executes query descriptions.
type Backend interface {
	// Fetch returns the rows selected by q. When q.Count is set, Total holds
	// the number of rows matching q.Where regardless of q.Range.
	Fetch(ctx context.Context, q Query) (*Page, error)

	// Pluck returns the distinct values of column across rows matching q.
	Pluck(ctx context.Context, q Query, column string) ([]string, error)
}

func Eq(col string, v any) Predicate { return Predicate{Op: OpEq, Column: col, Value: v} }

func In(col string, vs ...any) Predicate { return Predicate{Op: OpIn, Column: col, Values: vs} }

func ILike(col, term string) Predicate { return Predicate{Op: OpILike, Column: col, Value: term} }

func IsNull(col string) Predicate { return Predicate{Op: OpIsNull, Column: col} }

func Gte(col string, v any) Predicate { return Predicate{Op: OpGte, Column: col, Value: v} }

func Lt(col string, v any) Predicate { return Predicate{Op: OpLt, Column: col, Value: v} }

func Or(args ...Predicate) Predicate { return Predicate{Op: OpOr, Args: args} }

func And(args ...Predicate) Predicate { return Predicate{Op: OpAnd, Args: args} }

// RelatedILike matches rows whose foreignKey points at a row of relation
// whose column contains term.
func RelatedILike(relation model.Table, foreignKey, col, term string) Predicate {
	return Predicate{Op: OpRelatedILike, Relation: relation, ForeignKey: foreignKey, Column: col, Value: term}
}

// Validate rejects unknown tables, columns and operators, and malformed
// ranges. Backends call it before executing anything.
func (q Query) Validate() error {
	if !q.Table.IsValid() {
		return fmt.Errorf("unknown table %q", q.Table)
	}
	for i, p := range q.Where {
		if err := p.validate(q.Table); err != nil {
			return fmt.Errorf("where[%d]: %w", i, err)
		}
	}
	if q.Order != nil && !model.HasColumn(q.Table, q.Order.Column) {
		return fmt.Errorf("order: unknown column %q", q.Order.Column)
	}
	if q.Range != nil && (q.Range.From < 0 || q.Range.To < q.Range.From) {
		return fmt.Errorf("invalid range [%d, %d]", q.Range.From, q.Range.To)
	}
	return nil
}

func (p Predicate) validate(t model.Table) error {
	switch p.Op {
	case OpEq, OpILike, OpGte, OpLt, OpIsNull:
		if !model.HasColumn(t, p.Column) {
			return fmt.Errorf("%s: unknown column %q", p.Op, p.Column)
		}
	case OpIn:
		if !model.HasColumn(t, p.Column) {
			return fmt.Errorf("in: unknown column %q", p.Column)
		}
		if len(p.Values) == 0 {
			return fmt.Errorf("in: no values for %q", p.Column)
		}
	case OpOr, OpAnd:
		if len(p.Args) == 0 {
			return fmt.Errorf("%s: no arguments", p.Op)
		}
		for i, a := range p.Args {
			if err := a.validate(t); err != nil {
				return fmt.Errorf("%s[%d]: %w", p.Op, i, err)
			}
		}
	case OpRelatedILike:
		if !p.Relation.IsValid() {
			return fmt.Errorf("related_ilike: unknown relation %q", p.Relation)
		}
		if !model.HasColumn(t, p.ForeignKey) {
			return fmt.Errorf("related_ilike: unknown foreign key %q", p.ForeignKey)
		}
		if !model.HasColumn(p.Relation, p.Column) {
			return fmt.Errorf("related_ilike: unknown column %q on %q", p.Column, p.Relation)
		}
	default:
		return fmt.Errorf("unknown operator %q", p.Op)
	}
	return nil
}
