package postgres

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/alfredjeanlab/studiodesk/internal/model"
)

// scanRows reads every row into a model.Row keyed by column name. When
// withTotal is set the first column is the COUNT(*) OVER() total and is
// returned separately.
func scanRows(rows *sql.Rows, withTotal bool) ([]model.Row, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, 0, fmt.Errorf("columns: %w", err)
	}
	dateCols := dateColumns(rows)

	start := 0
	if withTotal {
		start = 1
	}

	var (
		out   []model.Row
		total int
	)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, err
		}
		if withTotal {
			total = toInt(vals[0])
		}
		row := make(model.Row, len(cols)-start)
		for i := start; i < len(cols); i++ {
			row[cols[i]] = normalize(vals[i], i < len(dateCols) && dateCols[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// dateColumns marks DATE columns so they are rendered as plain dates.
func dateColumns(rows *sql.Rows) []bool {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil
	}
	out := make([]bool, len(types))
	for i, ct := range types {
		out[i] = ct.DatabaseTypeName() == "DATE"
	}
	return out
}

// normalize converts driver values to JSON-friendly types: NUMERIC arrives
// as bytes and becomes float64, DATE becomes "2006-01-02".
func normalize(v any, isDate bool) any {
	switch x := v.(type) {
	case []byte:
		s := string(x)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	case time.Time:
		if isDate {
			return x.Format("2006-01-02")
		}
		return x.UTC()
	}
	return v
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	case []byte:
		i, _ := strconv.Atoi(string(n))
		return i
	}
	return 0
}
