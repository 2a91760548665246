package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB records statements and answers QueryRow with a canned row.
type fakeDB struct {
	sql  []string
	args [][]any
	tag  pgconn.CommandTag
	err  error
	row  pgx.Row
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return f.tag, f.err
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return f.row
}

// fakeRow scans fixed values into the destinations.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *int:
			*p = r.values[i].(int)
		case *pgtype.Text:
			*p = r.values[i].(pgtype.Text)
		case *pgtype.Timestamptz:
			*p = r.values[i].(pgtype.Timestamptz)
		default:
			return errors.New("unexpected destination")
		}
	}
	return nil
}

func TestStore_Migrate(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	require.NoError(t, New(db).Migrate(context.Background()))
	require.Len(t, db.sql, 1)
	assert.Contains(t, db.sql[0], "CREATE TABLE IF NOT EXISTS executions")

	db.err = errors.New("permission denied")
	err := New(db).Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate executions")
}

func TestStore_Record(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	e := Execution{
		ID: "0b7c8a52-6f0e-4c57-9d0e-3d1f5f7b1a10", Name: "ventas", ConfigFile: "input.yaml",
		DataFile: "data.csv", Status: "Failed", Records: 10, Errors: 2, Directory: "/x",
		StartedAt: start, FinishedAt: start.Add(time.Second),
	}

	require.NoError(t, New(db).Record(context.Background(), e))

	require.Len(t, db.args, 1)
	args := db.args[0]
	require.Len(t, args, 12)
	assert.Equal(t, e.ID, args[0])
	assert.Equal(t, "Failed", args[4])
	assert.Equal(t, pgtype.Text{}, args[9], "empty method is NULL")
	assert.Equal(t, pgtype.Timestamptz{Time: start, Valid: true}, args[10])
	assert.True(t, strings.HasPrefix(strings.TrimSpace(db.sql[0]), "INSERT INTO executions"))
}

func TestStore_Get(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: []any{
		"id-1", "ventas", "input.yaml", "data.csv", "Partial", 5, 0, 1, "/x",
		pgtype.Text{String: "http", Valid: true},
		pgtype.Timestamptz{Time: start, Valid: true},
		pgtype.Timestamptz{Time: start.Add(time.Minute), Valid: true},
	}}}

	e, err := New(db).Get(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, Execution{
		ID: "id-1", Name: "ventas", ConfigFile: "input.yaml", DataFile: "data.csv",
		Status: "Partial", Records: 5, Warnings: 1, Directory: "/x", Method: "http",
		StartedAt: start, FinishedAt: start.Add(time.Minute),
	}, e)
	assert.Equal(t, []any{"id-1"}, db.args[0])
}

func TestStore_GetNotFound(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	_, err := New(db).Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteBefore(t *testing.T) {
	t.Parallel()

	db := &fakeDB{tag: pgconn.NewCommandTag("DELETE 3")}
	n, err := New(db).DeleteBefore(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
