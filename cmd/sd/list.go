package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/studiodesk/internal/client"
	"github.com/alfredjeanlab/studiodesk/internal/listing"
	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list <entity>",
	Short:   "Fetch one page of a list",
	GroupID: "lists",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ok := listing.Entity(args[0])
		if !ok {
			return fmt.Errorf("unknown list %q (one of %s)", args[0], strings.Join(listing.Entities(), ", "))
		}

		req := &client.ListRequest{Entity: cfg.Name}
		req.Search, _ = cmd.Flags().GetString("search")
		req.Filters, _ = cmd.Flags().GetStringSlice("filter")
		req.Sort, _ = cmd.Flags().GetString("sort")
		req.Page, _ = cmd.Flags().GetInt("page")
		req.PageSize, _ = cmd.Flags().GetInt("page-size")
		if cmd.Flags().Changed("desc") {
			desc, _ := cmd.Flags().GetBool("desc")
			req.Desc = &desc
		}

		resp, err := studioClient.List(context.Background(), currentScope(), req)
		if err != nil {
			return fmt.Errorf("listing %s: %w", cfg.Name, err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, resp)
		}
		if err := printRowTable(out, cfg.Table, resp.Rows); err != nil {
			return err
		}
		fmt.Fprintln(out, ui.RenderMuted(fmt.Sprintf("\npage %d/%d, %d %s total", resp.Page+1, max(resp.Pages, 1), resp.Total, cfg.Name)))
		return nil
	},
}

var listsCmd = &cobra.Command{
	Use:               "lists [<entity>]",
	Short:             "Describe the available lists, filters and sorts",
	GroupID:           "lists",
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := listing.Entities()
		if len(args) == 1 {
			if _, ok := listing.Entity(args[0]); !ok {
				return fmt.Errorf("unknown list %q", args[0])
			}
			names = args
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			descs := make([]client.ListDescriptor, 0, len(names))
			for _, name := range names {
				cfg, _ := listing.Entity(name)
				descs = append(descs, describe(cfg))
			}
			return printJSON(out, descs)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, name := range names {
			cfg, _ := listing.Entity(name)
			d := describe(cfg)
			dir := "asc"
			if d.DefaultDesc {
				dir = "desc"
			}
			fmt.Fprintf(w, "%s\t(table %s, sort %s %s, page size %d)\n", ui.RenderAccent(d.Name), d.Table, d.DefaultSort, dir, d.PageSize)
			fmt.Fprintf(w, "  filters:\t%s\n", optionKeys(d.Filters))
			fmt.Fprintf(w, "  sorts:\t%s\n", optionKeys(d.Sorts))
		}
		return w.Flush()
	},
}

func describe(cfg *listing.FilterConfig) client.ListDescriptor {
	d := client.ListDescriptor{
		Name:        cfg.Name,
		Table:       string(cfg.Table),
		DefaultSort: cfg.DefaultSort,
		DefaultDesc: cfg.DefaultDesc,
		PageSize:    cfg.PageSize,
		MaxPageSize: cfg.MaxPageSize,
	}
	for _, f := range cfg.Filters {
		d.Filters = append(d.Filters, client.Option{Key: f.Key, Label: f.Label})
	}
	for _, s := range cfg.SortOptions {
		d.Sorts = append(d.Sorts, client.Option{Key: s.Key, Label: s.Label})
	}
	return d
}

func optionKeys(opts []client.Option) string {
	keys := make([]string, len(opts))
	for i, o := range opts {
		keys[i] = o.Key
	}
	return strings.Join(keys, ", ")
}

// tableOf resolves a table name given on the command line.
func tableOf(name string) (model.Table, error) {
	t := model.Table(name)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

func init() {
	listCmd.Flags().StringP("search", "s", "", "search term")
	listCmd.Flags().StringSliceP("filter", "f", nil, "filter keys (repeatable)")
	listCmd.Flags().String("sort", "", "sort key")
	listCmd.Flags().Bool("desc", false, "sort descending (defaults to the list's direction)")
	listCmd.Flags().Int("page", 0, "zero-based page")
	listCmd.Flags().Int("page-size", 0, "rows per page (0 uses the list default)")
}
