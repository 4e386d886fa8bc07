// Package listing implements the filtered-list controller shared by every
// list screen: debounced search, declarative filters and sorts, query
// translation, pagination and realtime invalidation.
package listing

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
)

var validate = validator.New()

// FilterKind tags the variant of a FilterOption.
type FilterKind int

const (
	// KindColumn is a static column = value match. Options sharing a column
	// are ORed together.
	KindColumn FilterKind = iota
	// KindCustom applies a predicate built at query time.
	KindCustom
	// KindStaffRole restricts rows to parents having an assignment in a role.
	KindStaffRole
	// KindStatus selects one value of the composite status filter.
	KindStatus
)

func (k FilterKind) String() string {
	switch k {
	case KindColumn:
		return "column"
	case KindCustom:
		return "custom"
	case KindStaffRole:
		return "staff_role"
	case KindStatus:
		return "status"
	}
	return fmt.Sprintf("FilterKind(%d)", int(k))
}

// Env is what a custom predicate builder may depend on.
type Env struct {
	Scope model.Scope
	Now   time.Time
	Today string // Now formatted as a date
}

// PredicateFunc builds a custom filter predicate.
type PredicateFunc func(Env) query.Predicate

// FilterOption is one selectable filter chip.
type FilterOption struct {
	Key   string     `validate:"required"`
	Label string     `validate:"required"`
	Kind  FilterKind `validate:"gte=0,lte=3"`

	Column string        // KindColumn
	Value  any           // KindColumn
	Build  PredicateFunc // KindCustom
	Role   string        // KindStaffRole
	Status Status        // KindStatus
}

// SortOption is one selectable sort column.
type SortOption struct {
	Key    string `validate:"required"`
	Label  string `validate:"required"`
	Column string `validate:"required"`
}

// Visibility selects how rows are restricted beyond the workspace.
type Visibility int

const (
	// VisibilityWorkspace shows every row of the workspace.
	VisibilityWorkspace Visibility = iota
	// VisibilityAssigned shows non-elevated users only rows assigned to them.
	VisibilityAssigned
	// VisibilityAssignedOrFreelancer additionally shows non-elevated users
	// rows where they are the booked freelancer.
	VisibilityAssignedOrFreelancer
)

// RelatedSearch adds a contains match on a related table's column to the
// search clause, e.g. the client name of an event.
type RelatedSearch struct {
	Relation   model.Table `validate:"required"`
	ForeignKey string      `validate:"required"`
	Column     string      `validate:"required"`
}

// StaffJoin describes the assignment table consulted by KindStaffRole
// filters.
type StaffJoin struct {
	Table        model.Table `validate:"required"`
	ParentColumn string      `validate:"required"` // references the listed table's id
	RoleColumn   string      `validate:"required"`
}

// FilterConfig is the static description of one list screen.
type FilterConfig struct {
	Name          string         `validate:"required"`
	Table         model.Table    `validate:"required"`
	SearchColumns []string       `validate:"dive,required"`
	RelatedSearch *RelatedSearch `validate:"omitempty"`
	SortOptions   []SortOption   `validate:"required,min=1,dive"`
	Filters       []FilterOption `validate:"dive"`
	DefaultSort   string         `validate:"required"`
	DefaultDesc   bool
	PageSize      int `validate:"required,min=1"`
	MaxPageSize   int `validate:"required,gtefield=PageSize"`

	Realtime  bool
	AuxTables []model.Table

	Visibility Visibility `validate:"gte=0,lte=2"`
	StaffJoin  *StaffJoin  `validate:"omitempty"`
	Status     *StatusRule `validate:"omitempty"`
}

// Validate checks struct tags, then that every referenced table, column and
// key exists and that each option carries what its kind needs.
func (c *FilterConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config %q: %w", c.Name, err)
	}
	if !c.Table.IsValid() {
		return fmt.Errorf("config %q: unknown table %q", c.Name, c.Table)
	}
	for _, col := range c.SearchColumns {
		if !model.HasColumn(c.Table, col) {
			return fmt.Errorf("config %q: unknown search column %q", c.Name, col)
		}
	}
	if rs := c.RelatedSearch; rs != nil {
		if !model.HasColumn(c.Table, rs.ForeignKey) || !model.HasColumn(rs.Relation, rs.Column) {
			return fmt.Errorf("config %q: invalid related search %s.%s via %s", c.Name, rs.Relation, rs.Column, rs.ForeignKey)
		}
	}

	sorts := make(map[string]bool, len(c.SortOptions))
	for _, s := range c.SortOptions {
		if sorts[s.Key] {
			return fmt.Errorf("config %q: duplicate sort key %q", c.Name, s.Key)
		}
		sorts[s.Key] = true
		if !model.HasColumn(c.Table, s.Column) {
			return fmt.Errorf("config %q: sort %q: unknown column %q", c.Name, s.Key, s.Column)
		}
	}
	if !sorts[c.DefaultSort] {
		return fmt.Errorf("config %q: default sort %q is not a sort option", c.Name, c.DefaultSort)
	}

	if c.Visibility != VisibilityWorkspace && !model.HasColumn(c.Table, "assigned_to") {
		return fmt.Errorf("config %q: visibility needs an assigned_to column", c.Name)
	}
	if c.Visibility == VisibilityAssignedOrFreelancer && !model.HasColumn(c.Table, "freelancer_id") {
		return fmt.Errorf("config %q: visibility needs a freelancer_id column", c.Name)
	}
	if sj := c.StaffJoin; sj != nil {
		if !model.HasColumn(sj.Table, sj.ParentColumn) || !model.HasColumn(sj.Table, sj.RoleColumn) {
			return fmt.Errorf("config %q: invalid staff join on %q", c.Name, sj.Table)
		}
	}
	if sr := c.Status; sr != nil {
		if !model.HasColumn(c.Table, sr.ConvertedColumn) || !model.HasColumn(c.Table, sr.ValidUntilColumn) {
			return fmt.Errorf("config %q: invalid status columns", c.Name)
		}
	}
	for _, t := range c.AuxTables {
		if !t.IsValid() {
			return fmt.Errorf("config %q: unknown auxiliary table %q", c.Name, t)
		}
	}

	keys := make(map[string]bool, len(c.Filters))
	for _, f := range c.Filters {
		if keys[f.Key] {
			return fmt.Errorf("config %q: duplicate filter key %q", c.Name, f.Key)
		}
		keys[f.Key] = true
		if err := c.validateOption(f); err != nil {
			return fmt.Errorf("config %q: filter %q: %w", c.Name, f.Key, err)
		}
	}
	return nil
}

func (c *FilterConfig) validateOption(f FilterOption) error {
	switch f.Kind {
	case KindColumn:
		if !model.HasColumn(c.Table, f.Column) {
			return fmt.Errorf("unknown column %q", f.Column)
		}
		if f.Value == nil {
			return errors.New("missing value")
		}
	case KindCustom:
		if f.Build == nil {
			return errors.New("missing predicate builder")
		}
	case KindStaffRole:
		if c.StaffJoin == nil {
			return errors.New("staff role filter without a staff join")
		}
		if f.Role == "" {
			return errors.New("missing role")
		}
	case KindStatus:
		if c.Status == nil {
			return errors.New("status filter without a status rule")
		}
		if !f.Status.IsValid() {
			return fmt.Errorf("invalid status %q", f.Status)
		}
	default:
		return fmt.Errorf("unknown kind %s", f.Kind)
	}
	return nil
}

// option returns the filter option with the given key.
func (c *FilterConfig) option(key string) (FilterOption, bool) {
	for _, f := range c.Filters {
		if f.Key == key {
			return f, true
		}
	}
	return FilterOption{}, false
}

// sortColumn resolves a sort key, falling back to the default sort.
func (c *FilterConfig) sortColumn(key string) (string, string) {
	for _, s := range c.SortOptions {
		if s.Key == key {
			return s.Key, s.Column
		}
	}
	for _, s := range c.SortOptions {
		if s.Key == c.DefaultSort {
			return s.Key, s.Column
		}
	}
	return "", ""
}

// HasSort reports whether key names a sort option.
func (c *FilterConfig) HasSort(key string) bool {
	for _, s := range c.SortOptions {
		if s.Key == key {
			return true
		}
	}
	return false
}

// HasFilter reports whether key names a filter option.
func (c *FilterConfig) HasFilter(key string) bool {
	_, ok := c.option(key)
	return ok
}

// Tables returns the primary table followed by the auxiliary realtime tables.
func (c *FilterConfig) Tables() []model.Table {
	out := make([]model.Table, 0, 1+len(c.AuxTables))
	out = append(out, c.Table)
	return append(out, c.AuxTables...)
}
