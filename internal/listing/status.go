package listing

import "github.com/alfredjeanlab/studiodesk/internal/query"

// Status is one value of a composite converted/validity status filter.
type Status string

const (
	StatusConverted Status = "converted"
	StatusExpired   Status = "expired"
	StatusValid     Status = "valid"
	StatusPending   Status = "pending"
)

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusConverted, StatusExpired, StatusValid, StatusPending:
		return true
	}
	return false
}

// StatusRule layers the four status keys onto two underlying predicates: a
// converted flag and a validity date compared with today.
type StatusRule struct {
	ConvertedColumn  string `validate:"required"`
	ValidUntilColumn string `validate:"required"`
}

// Predicates returns the clauses for the selected statuses. Converted wins
// over everything else. Otherwise rows are unconverted and filtered by
// validity: expired alone means past the validity date, valid or pending (or
// nothing selected) means still valid, and both together apply no date
// clause at all.
func (r StatusRule) Predicates(selected map[Status]bool, today string) []query.Predicate {
	if selected[StatusConverted] {
		return []query.Predicate{query.Eq(r.ConvertedColumn, true)}
	}

	out := []query.Predicate{query.Eq(r.ConvertedColumn, false)}
	expired := selected[StatusExpired]
	live := selected[StatusValid] || selected[StatusPending] || !expired
	if expired && live {
		return out
	}
	return append(out, r.validity(expired, today))
}

// validity is the only place the validity date is compared with today.
func (r StatusRule) validity(expired bool, today string) query.Predicate {
	if expired {
		return query.Lt(r.ValidUntilColumn, today)
	}
	return query.Or(query.IsNull(r.ValidUntilColumn), query.Gte(r.ValidUntilColumn, today))
}
