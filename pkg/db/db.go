package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("db: not found")

// Database wraps the sqlite handle used by every store in the bot.
type Database struct {
	DB *sql.DB
}

// New opens (and creates if needed) the sqlite database at path.
// Use ":memory:" for tests.
func New(path string) (*Database, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	// under concurrent reservation writes.
	handle.SetMaxOpenConns(1)

	if _, err := handle.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return &Database{DB: handle}, nil
}

// Close closes the underlying handle.
func (d *Database) Close() error {
	return d.DB.Close()
}
