package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/alfredjeanlab/studiodesk/internal/model"
)

// number converts numeric values, including numeric strings, to float64.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// text renders values the way they would compare as SQL text. Times use
// RFC 3339 so dates stored as "2006-01-02" strings order correctly against
// them.
func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb
		}
		return strconv.FormatBool(ab) == fmt.Sprint(b)
	}
	if bb, ok := b.(bool); ok {
		return fmt.Sprint(a) == strconv.FormatBool(bb)
	}
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return false
}

// compare orders a against b. Numbers compare numerically when both sides
// are numeric, times chronologically, everything else as text. Nil never
// compares.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb), true
		}
	}
	_, aStr := a.(string)
	_, bStr := b.(string)
	if !(aStr && bStr) {
		if fa, ok := number(a); ok {
			if fb, ok := number(b); ok {
				switch {
				case fa < fb:
					return -1, true
				case fa > fb:
					return 1, true
				}
				return 0, true
			}
		}
	}
	sa, sb := text(a), text(b)
	switch {
	case sa < sb:
		return -1, true
	case sa > sb:
		return 1, true
	}
	return 0, true
}

// sortRows orders rows by column with ids breaking ties. Nulls sort last
// ascending and first descending, as in PostgreSQL.
func sortRows(rows []model.Row, column string, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][column], rows[j][column]
		switch {
		case a == nil && b == nil:
		case a == nil:
			return desc
		case b == nil:
			return !desc
		default:
			if c, _ := compare(a, b); c != 0 {
				if desc {
					return c > 0
				}
				return c < 0
			}
		}
		return rows[i].ID() < rows[j].ID()
	})
}
