package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/studiodesk/internal/config"
	"github.com/alfredjeanlab/studiodesk/internal/events"
	"github.com/alfredjeanlab/studiodesk/internal/server"
	"github.com/alfredjeanlab/studiodesk/internal/store"
	"github.com/alfredjeanlab/studiodesk/internal/store/memory"
	"github.com/alfredjeanlab/studiodesk/internal/store/postgres"
	studiosync "github.com/alfredjeanlab/studiodesk/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Start the studiodesk HTTP and gRPC servers",
	GroupID:           "system",
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		seed, _ := cmd.Flags().GetString("seed")

		st, err := openStore(cmd.Context(), cfg, seed, logger)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{Logger: logger}
			logger.Info("events limited to SSE (STUDIO_NATS_URL not set)")
		}

		studioServer := server.NewStudioServer(st, publisher, logger)
		grpcServer := server.NewGRPCServer(studioServer, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}

		studioServer.Presence().StartReaper(nil)

		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           studioServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var scheduler *studiosync.Scheduler
		if cfg.SyncInterval > 0 {
			if dests := syncDestinations(context.Background(), cfg, logger); len(dests) > 0 {
				scheduler = studiosync.NewScheduler(st, dests, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
			}
		}

		if cfg.AuthToken == "" {
			logger.Warn("authentication disabled (STUDIO_AUTH_TOKEN not set)")
		}
		logger.Info("studiodesk server started",
			"store", cfg.Store,
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		studioServer.Presence().Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// openStore opens the configured store. A memory store is optionally seeded
// from a JSONL export.
func openStore(ctx context.Context, cfg *config.Config, seed string, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		ms := memory.New()
		if seed != "" {
			n, err := seedMemory(ctx, cfg, ms, seed)
			if err != nil {
				return nil, err
			}
			logger.Info("memory store seeded", "from", seed, "rows", n)
		}
		return ms, nil
	default:
		if seed != "" {
			return nil, fmt.Errorf("--seed requires STUDIO_STORE=memory")
		}
		return postgres.New(cfg.DatabaseURL)
	}
}

// seedMemory loads ms from the configured S3 object ("s3"), the configured
// git clone ("git"), or a local export file.
func seedMemory(ctx context.Context, cfg *config.Config, ms *memory.Store, from string) (int, error) {
	var snap studiosync.Snapshot
	switch from {
	case "s3":
		d, err := studiosync.NewS3Destination(ctx, cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
		if err != nil {
			return 0, fmt.Errorf("seed from s3: %w", err)
		}
		snap = d
	case "git":
		if cfg.SyncGitRepo == "" {
			return 0, fmt.Errorf("seed from git: STUDIO_SYNC_GIT_REPO not set")
		}
		snap = studiosync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch)
	default:
		f, err := os.Open(from)
		if err != nil {
			return 0, fmt.Errorf("open seed: %w", err)
		}
		defer f.Close()
		n, err := studiosync.ImportJSONL(f, ms)
		if err != nil {
			return n, fmt.Errorf("seed %s: %w", from, err)
		}
		return n, nil
	}
	n, err := studiosync.Restore(ctx, snap, ms)
	if err != nil {
		return n, fmt.Errorf("seed from %s: %w", from, err)
	}
	return n, nil
}

// syncDestinations builds the configured S3 and git destinations. A
// destination that cannot be created is logged and skipped.
func syncDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []studiosync.Destination {
	var dests []studiosync.Destination

	if cfg.SyncS3Bucket != "" {
		s3Dest, err := studiosync.NewS3Destination(ctx, cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}

	if cfg.SyncGitRepo != "" {
		dests = append(dests, studiosync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}

	return dests
}

func init() {
	serveCmd.Flags().String("seed", "", "export to load into the memory store at startup: a JSONL file, \"s3\" or \"git\"")
}
