// Package ledger is the durable store of listening time.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// TimeLayout is how commit timestamps are stored: UTC with microsecond
// precision, so lexical order matches time order.
const TimeLayout = "2006-01-02 15:04:05.000000"

const schema = `
	CREATE TABLE IF NOT EXISTS listening_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		track_name TEXT NOT NULL,
		artist_name TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		UNIQUE(timestamp, track_name, artist_name)
	);
	CREATE INDEX IF NOT EXISTS idx_listening_data_timestamp ON listening_data(timestamp);
	CREATE INDEX IF NOT EXISTS idx_listening_data_artist ON listening_data(artist_name);
`

// ErrInvalidEntry is returned by Append for empty identities or
// non-positive durations.
var ErrInvalidEntry = errors.New("invalid ledger entry")

// Repository handles listening ledger storage
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the ledger database at dbPath and applies
// the schema.
func Open(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode allows concurrent reads during writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	// Wait up to 5s for write lock instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// SQLite supports one writer at a time; constrain the pool accordingly
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks database connectivity (for readiness probes)
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// isBusy reports whether err is a lock contention error worth retrying.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
