package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/studiodesk/internal/client"
	"github.com/alfredjeanlab/studiodesk/internal/ui"
)

var whoCmd = &cobra.Command{
	Use:     "who",
	Short:   "Show who is watching the workspace's lists",
	GroupID: "lists",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if workspaceID == "" {
			return fmt.Errorf("--workspace is required")
		}
		c, ok := studioClient.(*client.HTTPClient)
		if !ok {
			return fmt.Errorf("who requires --transport http")
		}
		viewers, err := c.Presence(context.Background(), workspaceID)
		if err != nil {
			return fmt.Errorf("fetching presence: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, viewers)
		}
		if len(viewers) == 0 {
			fmt.Fprintln(out, "nobody is watching")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, ui.RenderAccent("USER\tSTATUS\tSTREAMS\tEVENTS\tLAST SEEN\tTOPICS"))
		for _, v := range viewers {
			user := v.User
			if user == "" {
				user = "(anonymous)"
			}
			status := ui.RenderMuted("offline")
			if v.Online {
				status = ui.RenderActive("online")
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
				user, status, v.Streams, v.Events,
				time.Since(v.LastSeen).Round(time.Second), strings.Join(v.Topics, ","))
		}
		return w.Flush()
	},
}
