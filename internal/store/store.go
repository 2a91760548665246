// Package store records validation executions in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNotFound is returned when no execution has the requested id.
var ErrNotFound = errors.New("execution not found")

// DBTX is the subset of pgx shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS executions (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	config_file TEXT NOT NULL,
	data_file   TEXT NOT NULL,
	status      TEXT NOT NULL,
	records     INTEGER NOT NULL DEFAULT 0,
	errors      INTEGER NOT NULL DEFAULT 0,
	warnings    INTEGER NOT NULL DEFAULT 0,
	directory   TEXT NOT NULL,
	method      TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_started_at_idx ON executions (started_at);
`

// Execution is one recorded run.
type Execution struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ConfigFile string    `json:"config_file"`
	DataFile   string    `json:"data_file"`
	Status     string    `json:"status"`
	Records    int       `json:"records"`
	Errors     int       `json:"errors"`
	Warnings   int       `json:"warnings"`
	Directory  string    `json:"directory"`
	Method     string    `json:"method,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store reads and writes executions.
type Store struct {
	db DBTX
}

// New creates a Store on db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// Migrate creates the executions table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate executions: %w", err)
	}
	return nil
}

// Record inserts an execution.
func (s *Store) Record(ctx context.Context, e Execution) error {
	const query = `
INSERT INTO executions
	(id, name, config_file, data_file, status, records, errors, warnings,
	 directory, method, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.Exec(ctx, query,
		e.ID, e.Name, e.ConfigFile, e.DataFile, e.Status,
		e.Records, e.Errors, e.Warnings, e.Directory,
		pgtype.Text{String: e.Method, Valid: e.Method != ""},
		pgtype.Timestamptz{Time: e.StartedAt, Valid: true},
		pgtype.Timestamptz{Time: e.FinishedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("record execution %s: %w", e.ID, err)
	}
	return nil
}

// Get returns the execution with the given id.
func (s *Store) Get(ctx context.Context, id string) (Execution, error) {
	const query = `
SELECT id::text, name, config_file, data_file, status, records, errors, warnings,
	directory, method, started_at, finished_at
FROM executions WHERE id = $1`

	var (
		e        Execution
		method   pgtype.Text
		started  pgtype.Timestamptz
		finished pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Name, &e.ConfigFile, &e.DataFile, &e.Status,
		&e.Records, &e.Errors, &e.Warnings, &e.Directory,
		&method, &started, &finished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Execution{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Execution{}, fmt.Errorf("get execution %s: %w", id, err)
	}

	e.Method = method.String
	e.StartedAt = started.Time
	e.FinishedAt = finished.Time
	return e, nil
}

// DeleteBefore removes executions started before cutoff and returns how
// many rows were deleted.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM executions WHERE started_at < $1`,
		pgtype.Timestamptz{Time: cutoff, Valid: true})
	if err != nil {
		return 0, fmt.Errorf("delete executions: %w", err)
	}
	return tag.RowsAffected(), nil
}
