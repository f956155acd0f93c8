package db

import "fmt"

// migrations are applied in order; each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS instruments (
		symbol      TEXT PRIMARY KEY,
		price       REAL NOT NULL,
		history     TEXT NOT NULL DEFAULT '[]',
		last_update TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id         TEXT PRIMARY KEY,
		cash_balance    REAL NOT NULL,
		reserved_margin REAL NOT NULL DEFAULT 0,
		updated_at      TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMP NOT NULL
	)`,
}

// ApplyMigrations creates the snapshot and auth tables.
func ApplyMigrations(d *Database) error {
	for i, stmt := range migrations {
		if _, err := d.DB.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
