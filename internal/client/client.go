// Package client provides a transport-agnostic interface for the studio
// backend and HTTP/JSON and gRPC implementations of it.
package client

import (
	"context"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
)

// StudioClient is the interface CLI commands use to talk to a studio server.
// It is a query.Backend, so a list controller can run against a remote
// server exactly as it runs against a local store.
type StudioClient interface {
	query.Backend

	// List fetches one page of a configured list on the server.
	List(ctx context.Context, scope model.Scope, req *ListRequest) (*ListResponse, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// ListRequest holds parameters for a server-side list fetch.
type ListRequest struct {
	Entity   string   `json:"entity"`
	Search   string   `json:"search,omitempty"`
	Filters  []string `json:"filters,omitempty"`
	Sort     string   `json:"sort,omitempty"`
	Desc     *bool    `json:"desc,omitempty"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size,omitempty"`
}

// ListResponse is the response from List.
type ListResponse struct {
	Entity   string      `json:"entity"`
	Rows     []model.Row `json:"rows"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Pages    int         `json:"pages"`
	Sort     string      `json:"sort"`
	Desc     bool        `json:"desc"`
}

// ListDescriptor describes a list's selectable filters and sorts.
type ListDescriptor struct {
	Name        string   `json:"name"`
	Table       string   `json:"table"`
	Filters     []Option `json:"filters"`
	Sorts       []Option `json:"sorts"`
	DefaultSort string   `json:"default_sort"`
	DefaultDesc bool     `json:"default_desc"`
	PageSize    int      `json:"page_size"`
	MaxPageSize int      `json:"max_page_size"`
}

// Option is a key/label pair.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// RowWriter is implemented by clients that can mutate rows. Only the HTTP
// transport exposes row endpoints.
type RowWriter interface {
	Insert(ctx context.Context, table model.Table, workspaceID string, row model.Row) (model.Row, error)
	Update(ctx context.Context, table model.Table, workspaceID, id string, patch model.Row) (model.Row, error)
	Delete(ctx context.Context, table model.Table, workspaceID, id string) error
}

var _ RowWriter = (*HTTPClient)(nil)
