package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/studiodesk/internal/config"
	studiosync "github.com/alfredjeanlab/studiodesk/internal/sync"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every table as JSONL",
	Long: `Export reads the store configured by the STUDIO_* environment directly,
not through a server. With --push the export is written to the configured
S3 and git sync destinations instead of a file.`,
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := context.Background()
		st, err := openStore(ctx, cfg, "", logger)
		if err != nil {
			return err
		}
		defer st.Close()

		if push, _ := cmd.Flags().GetBool("push"); push {
			dests := syncDestinations(ctx, cfg, logger)
			if len(dests) == 0 {
				return fmt.Errorf("no sync destinations configured (set STUDIO_SYNC_S3_BUCKET or STUDIO_SYNC_GIT_REPO)")
			}
			sched := studiosync.NewScheduler(st, dests, cfg.SyncInterval, logger)
			if err := sched.Push(ctx); err != nil {
				return err
			}
			status := sched.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %d rows (%d bytes) to %d destinations\n", status.Rows, status.Bytes, len(dests))
			return nil
		}

		var w io.Writer = cmd.OutOrStdout()
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			defer f.Close()
			w = f
		}
		return studiosync.ExportJSONL(ctx, st, w)
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	exportCmd.Flags().Bool("push", false, "write to the configured sync destinations")
}
