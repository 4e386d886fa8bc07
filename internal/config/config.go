package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends selectable with STUDIO_STORE.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Store       string // STUDIO_STORE ("postgres" or "memory", default "postgres")
	DatabaseURL string // STUDIO_DATABASE_URL (required for the postgres store)
	GRPCAddr    string // STUDIO_GRPC_ADDR (default ":9090")
	HTTPAddr    string // STUDIO_HTTP_ADDR (default ":8080")
	NATSURL     string // STUDIO_NATS_URL (optional, empty = in-process bus)
	AuthToken   string // STUDIO_AUTH_TOKEN (optional, empty = auth disabled)

	// List defaults
	PageSize       int           // STUDIO_PAGE_SIZE (default 50)
	SearchDebounce time.Duration // STUDIO_SEARCH_DEBOUNCE (default 300ms)

	// Sync settings
	SyncInterval   time.Duration // STUDIO_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // STUDIO_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // STUDIO_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // STUDIO_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // STUDIO_SYNC_S3_KEY (default "studiodesk/backup.jsonl")
	SyncGitRepo    string        // STUDIO_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // STUDIO_SYNC_GIT_FILE (default "studiodesk.jsonl")
	SyncGitBranch  string        // STUDIO_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		Store:          envOrDefault("STUDIO_STORE", StorePostgres),
		DatabaseURL:    os.Getenv("STUDIO_DATABASE_URL"),
		GRPCAddr:       envOrDefault("STUDIO_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("STUDIO_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("STUDIO_NATS_URL"),
		AuthToken:      os.Getenv("STUDIO_AUTH_TOKEN"),
		SyncS3Bucket:   os.Getenv("STUDIO_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("STUDIO_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("STUDIO_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("STUDIO_SYNC_S3_KEY", "studiodesk/backup.jsonl"),
		SyncGitRepo:    os.Getenv("STUDIO_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("STUDIO_SYNC_GIT_FILE", "studiodesk.jsonl"),
		SyncGitBranch:  envOrDefault("STUDIO_SYNC_GIT_BRANCH", "main"),
	}

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("STUDIO_DATABASE_URL is required")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("STUDIO_STORE: unknown store %q", c.Store)
	}

	pageSize, err := strconv.Atoi(envOrDefault("STUDIO_PAGE_SIZE", "50"))
	if err != nil {
		return nil, fmt.Errorf("STUDIO_PAGE_SIZE: %w", err)
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("STUDIO_PAGE_SIZE must be positive, got %d", pageSize)
	}
	c.PageSize = pageSize

	debounce, err := time.ParseDuration(envOrDefault("STUDIO_SEARCH_DEBOUNCE", "300ms"))
	if err != nil {
		return nil, fmt.Errorf("STUDIO_SEARCH_DEBOUNCE: %w", err)
	}
	c.SearchDebounce = debounce

	intervalStr := envOrDefault("STUDIO_SYNC_INTERVAL", "3m")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("STUDIO_SYNC_INTERVAL: %w", err)
		}
		c.SyncInterval = d
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
