package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/studiodesk/internal/client"
	"github.com/alfredjeanlab/studiodesk/internal/model"
)

var addCmd = &cobra.Command{
	Use:     "add <table> [<column>=<value>...]",
	Short:   "Create a row",
	GroupID: "rows",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, w, err := rowTarget(args[0])
		if err != nil {
			return err
		}
		data, _ := cmd.Flags().GetString("data")
		row, err := parseRow(data, args[1:])
		if err != nil {
			return err
		}
		created, err := w.Insert(context.Background(), table, workspaceID, row)
		if err != nil {
			return fmt.Errorf("creating %s row: %w", table, err)
		}
		return printRow(cmd, table, created)
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <table> <id> [<column>=<value>...]",
	Short:   "Update columns of a row",
	GroupID: "rows",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, w, err := rowTarget(args[0])
		if err != nil {
			return err
		}
		data, _ := cmd.Flags().GetString("data")
		patch, err := parseRow(data, args[2:])
		if err != nil {
			return err
		}
		if len(patch) == 0 {
			return fmt.Errorf("nothing to update")
		}
		updated, err := w.Update(context.Background(), table, workspaceID, args[1], patch)
		if err != nil {
			return fmt.Errorf("updating %s %s: %w", table, args[1], err)
		}
		return printRow(cmd, table, updated)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <table> <id>",
	Short:   "Delete a row",
	GroupID: "rows",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, w, err := rowTarget(args[0])
		if err != nil {
			return err
		}
		if err := w.Delete(context.Background(), table, workspaceID, args[1]); err != nil {
			return fmt.Errorf("deleting %s %s: %w", table, args[1], err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[1]})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", table, args[1])
		return nil
	},
}

func rowTarget(name string) (model.Table, client.RowWriter, error) {
	table, err := tableOf(name)
	if err != nil {
		return "", nil, err
	}
	if workspaceID == "" {
		return "", nil, fmt.Errorf("--workspace is required")
	}
	w, ok := studioClient.(client.RowWriter)
	if !ok {
		return "", nil, fmt.Errorf("row commands require --transport http")
	}
	return table, w, nil
}

// parseRow merges a JSON object with column=value assignments. Values that
// parse as JSON (numbers, booleans, null) keep their type; anything else is
// a string.
func parseRow(data string, assignments []string) (model.Row, error) {
	row := model.Row{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("--data: %w", err)
		}
	}
	for _, a := range assignments {
		col, raw, ok := strings.Cut(a, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid assignment %q (want column=value)", a)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		row[col] = v
	}
	return row, nil
}

func printRow(cmd *cobra.Command, table model.Table, row model.Row) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), row)
	}
	return printRowDetail(cmd.OutOrStdout(), table, row)
}

func init() {
	addCmd.Flags().String("data", "", "row as a JSON object")
	updateCmd.Flags().String("data", "", "patch as a JSON object")
}
