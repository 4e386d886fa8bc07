package model

import "fmt"

// Row is an opaque table record keyed by column name. The list controller
// only relies on the "id" column; everything else is passed through.
type Row map[string]any

// ID returns the row identifier, or "" if the row has none.
func (r Row) ID() string {
	return r.String("id")
}

// String returns the column value formatted as a string. Missing and nil
// values yield "".
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
