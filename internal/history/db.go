// Package history provides persistent storage for agent sessions and the
// scene application changes they reported. Uses pure-Go SQLite
// (modernc.org/sqlite), no cgo required.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite database for session history.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The session and its sink write from different goroutines; one
	// connection serializes them instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	hdb := &DB{db: db}
	if err := hdb.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return hdb, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			agent_path  TEXT NOT NULL,
			pid         INTEGER NOT NULL DEFAULT 0,
			started_at  TEXT NOT NULL,
			ended_at    TEXT NOT NULL DEFAULT '',
			result      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS app_changes (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT NOT NULL,
			app_key     TEXT NOT NULL DEFAULT '',
			app_name    TEXT NOT NULL DEFAULT '',
			changed_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS app_changes_session ON app_changes(session_id)`,
	} {
		if _, err := d.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// timeFormat is fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}
