// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/studiodesk/internal/idgen"
	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
	"github.com/alfredjeanlab/studiodesk/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newWithDB(db), nil
}

func newWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Fetch(ctx context.Context, q query.Query) (*query.Page, error) {
	return queryFetch(ctx, s.db, q)
}

func (s *PostgresStore) Pluck(ctx context.Context, q query.Query, column string) ([]string, error) {
	return queryPluck(ctx, s.db, q, column)
}

func (s *PostgresStore) Insert(ctx context.Context, table model.Table, workspaceID string, row model.Row) (model.Row, error) {
	if err := model.ValidateRow(table, row, true); err != nil {
		return nil, err
	}
	id, err := idgen.ForTable(table)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	stored := row.Clone()
	stored["id"] = id
	stored["workspace_id"] = workspaceID
	stored["created_at"] = now
	stored["updated_at"] = now
	return queryInsert(ctx, s.db, table, stored)
}

func (s *PostgresStore) Update(ctx context.Context, table model.Table, workspaceID, id string, patch model.Row) (model.Row, error) {
	if err := model.ValidateRow(table, patch, true); err != nil {
		return nil, err
	}
	return queryUpdate(ctx, s.db, table, workspaceID, id, patch)
}

func (s *PostgresStore) Delete(ctx context.Context, table model.Table, workspaceID, id string) error {
	if !table.IsValid() {
		return fmt.Errorf("unknown table %q", table)
	}
	return queryDelete(ctx, s.db, table, workspaceID, id)
}

func (s *PostgresStore) All(ctx context.Context, table model.Table) ([]model.Row, error) {
	if !table.IsValid() {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return queryAll(ctx, s.db, table)
}
