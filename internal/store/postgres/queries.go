package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
	"github.com/alfredjeanlab/studiodesk/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryFetch(ctx context.Context, db executor, q query.Query) (*query.Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	c := &compiler{table: q.Table}
	whereSQL, err := c.where(q.Where)
	if err != nil {
		return nil, err
	}
	whereArgs := append([]any(nil), c.args...)

	from := " FROM " + ident(string(q.Table)) + whereSQL
	selectSQL := "SELECT "
	if q.Count {
		// Single query with COUNT(*) OVER() to get total and rows atomically.
		selectSQL += "COUNT(*) OVER() AS total_count, "
	}
	dataQuery := selectSQL + selectList(q.Table) + from + c.orderBy(q.Order)

	offset := 0
	if r := q.Range; r != nil {
		dataQuery += " LIMIT " + c.arg(r.Limit())
		if r.From > 0 {
			offset = r.From
			dataQuery += " OFFSET " + c.arg(r.From)
		}
	}

	rows, err := db.QueryContext(ctx, dataQuery, c.args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", q.Table, err)
	}
	defer rows.Close()

	result, total, err := scanRows(rows, q.Count)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", q.Table, err)
	}
	if result == nil {
		result = []model.Row{}
	}
	if !q.Count {
		return &query.Page{Rows: result, Total: len(result)}, nil
	}

	// A window past the last row has no row to carry the total.
	if len(result) == 0 && offset > 0 {
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*)"+from, whereArgs...).Scan(&total); err != nil {
			return nil, fmt.Errorf("count %s: %w", q.Table, err)
		}
	}
	return &query.Page{Rows: result, Total: total}, nil
}

func queryPluck(ctx context.Context, db executor, q query.Query, column string) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if !model.HasColumn(q.Table, column) {
		return nil, fmt.Errorf("pluck: unknown column %q", column)
	}

	c := &compiler{table: q.Table}
	whereSQL, err := c.where(q.Where)
	if err != nil {
		return nil, err
	}
	notNull := c.col(column) + " IS NOT NULL"
	if whereSQL == "" {
		whereSQL = " WHERE " + notNull
	} else {
		whereSQL += " AND " + notNull
	}

	rows, err := db.QueryContext(ctx,
		"SELECT DISTINCT "+c.col(column)+"::text FROM "+ident(string(q.Table))+whereSQL+" ORDER BY 1",
		c.args...)
	if err != nil {
		return nil, fmt.Errorf("pluck %s.%s: %w", q.Table, column, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// sortedColumns returns the keys of r in a stable order.
func sortedColumns(r model.Row) []string {
	cols := make([]string, 0, len(r))
	for col := range r {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func queryInsert(ctx context.Context, db executor, table model.Table, row model.Row) (model.Row, error) {
	cols := sortedColumns(row)
	c := &compiler{table: table}
	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		names[i] = ident(col)
		placeholders[i] = c.arg(row[col])
	}

	rows, err := db.QueryContext(ctx,
		"INSERT INTO "+ident(string(table))+" ("+strings.Join(names, ", ")+") VALUES ("+
			strings.Join(placeholders, ", ")+") RETURNING "+selectList(table),
		c.args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	defer rows.Close()
	return singleRow(rows)
}

func queryUpdate(ctx context.Context, db executor, table model.Table, workspaceID, id string, patch model.Row) (model.Row, error) {
	c := &compiler{table: table}
	var sets []string
	for _, col := range sortedColumns(patch) {
		sets = append(sets, ident(col)+" = "+c.arg(patch[col]))
	}
	sets = append(sets, ident("updated_at")+" = NOW()")

	rows, err := db.QueryContext(ctx,
		"UPDATE "+ident(string(table))+" SET "+strings.Join(sets, ", ")+
			" WHERE "+ident("id")+" = "+c.arg(id)+" AND "+ident("workspace_id")+" = "+c.arg(workspaceID)+
			" RETURNING "+selectList(table),
		c.args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	defer rows.Close()
	return singleRow(rows)
}

func queryDelete(ctx context.Context, db executor, table model.Table, workspaceID, id string) error {
	res, err := db.ExecContext(ctx,
		"DELETE FROM "+ident(string(table))+" WHERE "+ident("id")+" = $1 AND "+ident("workspace_id")+" = $2",
		id, workspaceID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func queryAll(ctx context.Context, db executor, table model.Table) ([]model.Row, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+selectList(table)+" FROM "+ident(string(table))+
			" ORDER BY "+ident("created_at")+" ASC, "+ident("id")+" ASC")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	out, _, err := scanRows(rows, false)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return out, nil
}

func singleRow(rows *sql.Rows) (model.Row, error) {
	out, _, err := scanRows(rows, false)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return out[0], nil
}
