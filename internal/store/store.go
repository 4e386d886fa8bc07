package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
)

// ErrNotFound is returned when a row does not exist in the caller's workspace.
var ErrNotFound = errors.New("not found")

// Store is a query.Backend that also accepts row mutations.
type Store interface {
	query.Backend

	// Insert stores row in table for workspaceID. The store assigns id,
	// workspace_id and timestamps; the stored row is returned.
	Insert(ctx context.Context, table model.Table, workspaceID string, row model.Row) (model.Row, error)

	// Update applies patch to the row with the given id. Only the listed
	// columns change.
	Update(ctx context.Context, table model.Table, workspaceID, id string, patch model.Row) (model.Row, error)

	// Delete removes the row with the given id.
	Delete(ctx context.Context, table model.Table, workspaceID, id string) error

	// All returns every row of table across workspaces, oldest first. Used
	// by export.
	All(ctx context.Context, table model.Table) ([]model.Row, error)

	// Lifecycle
	Close() error
}
