package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/ui"
)

// displayColumns are the columns shown in table output, after id.
var displayColumns = map[model.Table][]string{
	model.TableClients:           {"name", "email", "status", "source"},
	model.TableEvents:            {"title", "type", "event_date", "status", "balance_due"},
	model.TableTasks:             {"title", "status", "priority", "due_date"},
	model.TableQuotations:        {"title", "event_type", "amount", "valid_until", "converted"},
	model.TableFreelancers:       {"name", "role", "rate", "active"},
	model.TableAccountingEntries: {"entry_date", "entry_type", "category", "amount", "description"},
	model.TablePayments:          {"event_id", "amount", "paid_at", "method"},
	model.TableBalanceClosings:   {"event_id", "closed_amount", "closed_at"},
	model.TableEventStaff:        {"event_id", "role", "staff_id", "freelancer_id"},
}

const (
	maxCellWidth = 40
	minCellWidth = 8
	defaultWidth = 120
)

// cellWidth fits n columns into the terminal width.
func cellWidth(n int) int {
	if n == 0 {
		return maxCellWidth
	}
	w := (ui.Width(defaultWidth) - 2*n) / n
	return min(max(w, minCellWidth), maxCellWidth)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printRowTable(w io.Writer, table model.Table, rows []model.Row) error {
	cols := append([]string{"id"}, displayColumns[table]...)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = strings.ToUpper(c)
	}
	fmt.Fprintln(tw, ui.RenderAccent(strings.Join(header, "\t")))
	width := cellWidth(len(cols))
	for _, r := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = truncate(r.String(c), width)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func printRowDetail(w io.Writer, table model.Table, row model.Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range model.Columns(table) {
		if _, ok := row[c]; !ok {
			continue
		}
		fmt.Fprintf(tw, "%s:\t%s\n", c, row.String(c))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
