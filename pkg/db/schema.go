package db

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id           TEXT PRIMARY KEY,
	platform     TEXT NOT NULL,
	asset        TEXT NOT NULL,
	direction    TEXT NOT NULL,
	entry_price  REAL NOT NULL,
	quantity     REAL NOT NULL,
	strategy     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'OPEN',
	stop_loss    REAL NOT NULL DEFAULT 0,
	take_profit  REAL NOT NULL DEFAULT 0,
	peak_profit  REAL NOT NULL DEFAULT 0,
	confidence   REAL NOT NULL DEFAULT 0,
	ticket       TEXT NOT NULL DEFAULT '',
	opened_at    INTEGER NOT NULL,
	closed_at    INTEGER,
	exit_price   REAL,
	profit_loss  REAL,
	close_reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_platform_asset ON trades(platform, asset);

CREATE TABLE IF NOT EXISTS reservations (
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	owner         TEXT NOT NULL,
	acquired_at   INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL,
	PRIMARY KEY (resource_type, resource_id)
);

CREATE TABLE IF NOT EXISTS strategy_instances (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	enabled    INTEGER NOT NULL DEFAULT 1,
	params     TEXT NOT NULL DEFAULT '{}',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
`

// ApplyMigrations creates the schema and brings older databases up to
// date. Column additions go through ensureColumn so reruns are safe.
func (d *Database) ApplyMigrations() error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	migrations := []struct {
		table, column, ddl string
	}{
		{"trades", "peak_profit", "ALTER TABLE trades ADD COLUMN peak_profit REAL NOT NULL DEFAULT 0"},
		{"trades", "confidence", "ALTER TABLE trades ADD COLUMN confidence REAL NOT NULL DEFAULT 0"},
		{"trades", "ticket", "ALTER TABLE trades ADD COLUMN ticket TEXT NOT NULL DEFAULT ''"},
		{"trades", "close_reason", "ALTER TABLE trades ADD COLUMN close_reason TEXT"},
	}
	for _, m := range migrations {
		if err := d.ensureColumn(m.table, m.column, m.ddl); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) ensureColumn(table, column, ddl string) error {
	exists, err := d.columnExists(table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := d.DB.Exec(ddl); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

func (d *Database) columnExists(table, column string) (bool, error) {
	rows, err := d.DB.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
