// Package testutil provides shared test helpers for database setup.
package testutil

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaDDL matches the ledger schema applied on open. Seeding through raw
// SQL keeps fixtures independent of the Append clock.
const SchemaDDL = `
	CREATE TABLE IF NOT EXISTS listening_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		track_name TEXT NOT NULL,
		artist_name TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		UNIQUE(timestamp, track_name, artist_name)
	);
`

// timeLayout mirrors ledger.TimeLayout.
const timeLayout = "2006-01-02 15:04:05.000000"

// Row is one seeded listening entry.
type Row struct {
	At      time.Time
	Track   string
	Artist  string
	Seconds float64
}

// SeedDB creates a temporary database holding rows and returns its path.
func SeedDB(t *testing.T, rows ...Row) string {
	t.Helper()

	path := t.TempDir() + "/listening.db"
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(SchemaDDL); err != nil {
		t.Fatalf("failed to setup test db: %v", err)
	}

	for _, r := range rows {
		_, err := db.Exec(
			`INSERT INTO listening_data (timestamp, track_name, artist_name, duration) VALUES (?, ?, ?, ?)`,
			r.At.UTC().Format(timeLayout), r.Track, r.Artist, r.Seconds,
		)
		if err != nil {
			t.Fatalf("failed to seed row %+v: %v", r, err)
		}
	}
	return path
}
