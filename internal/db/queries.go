package db

import (
	"context"
	"database/sql"
	"time"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so the same helpers
// serve plain calls and transactional ones.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queries carries every typed query method. It is embedded in DB and Tx.
type queries struct {
	q queryer
}

// nowUnix returns the current Unix timestamp in seconds.
func nowUnix() int64 { return time.Now().Unix() }
