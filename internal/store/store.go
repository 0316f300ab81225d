// Package store persists forecast, projection and training runs in a SQL
// database (sqlite3 or postgres).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kartoza/decision-forecast/internal/apperr"
)

// Run is one persisted result. Payload is the JSON document of the result.
type Run struct {
	ID        string         `db:"id" json:"id"`
	Kind      string         `db:"kind" json:"kind"`
	Entity    string         `db:"entity" json:"entity"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	Payload   types.JSONText `db:"payload" json:"payload"`
}

// Decode unmarshals the payload into v
func (r *Run) Decode(v interface{}) error {
	if err := r.Payload.Unmarshal(v); err != nil {
		return fmt.Errorf("failed to decode run %s: %w", r.ID, err)
	}
	return nil
}

var schemas = map[string][]string{
	"sqlite3": {
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			entity TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS runs_kind_created ON runs (kind, created_at)`,
	},
	"postgres": {
		`CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			entity TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS runs_kind_created ON runs (kind, created_at)`,
	},
}

// Store handles run persistence
type Store struct {
	db *sqlx.DB
}

// Open connects to the database and creates the schema if needed.
// For sqlite3 the parent directory of the file is created.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	stmts, ok := schemas[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == "sqlite3" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite3" {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Create stores a new run with a generated ID
func (s *Store) Create(ctx context.Context, kind, entity string, payload interface{}) (*Run, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run payload: %w", err)
	}

	run := &Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Entity:    entity,
		CreatedAt: time.Now().UTC(),
		Payload:   types.JSONText(data),
	}

	query := s.db.Rebind(`INSERT INTO runs (id, kind, entity, created_at, payload) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, run.ID, run.Kind, run.Entity, run.CreatedAt, string(data)); err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// Get retrieves a run by ID
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("run %s: %w", id, apperr.ErrNotFound)
	}

	var run Run
	query := s.db.Rebind(`SELECT id, kind, entity, created_at, payload FROM runs WHERE id = ?`)
	if err := s.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &run, nil
}

// List returns runs newest first, optionally filtered by kind
func (s *Store) List(ctx context.Context, kind string) ([]Run, error) {
	query := `SELECT id, kind, entity, created_at, payload FROM runs`
	var args []interface{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, id`

	runs := []Run{}
	if err := s.db.SelectContext(ctx, &runs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Delete removes a run
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("run %s: %w", id, apperr.ErrNotFound)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM runs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}
