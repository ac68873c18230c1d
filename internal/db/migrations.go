package db

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
)

// Migrate applies any pending SQL files under migrations/ in lexical order.
// Each applied file is recorded in the _migrations ledger, so rerunning is
// a no-op for everything already applied.
func Migrate(database *sql.DB, migrationFS fs.FS) error {
	if _, err := database.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`); err != nil {
		return fmt.Errorf("create migrations ledger: %w", err)
	}

	done, err := appliedMigrations(database)
	if err != nil {
		return err
	}

	pending, err := pendingMigrations(migrationFS, done)
	if err != nil {
		return err
	}

	for _, name := range pending {
		if err := applyMigration(database, migrationFS, name); err != nil {
			return err
		}
		slog.Info("applied migration", "file", name)
	}
	if len(pending) == 0 {
		slog.Debug("migrations up to date", "applied", len(done))
	}
	return nil
}

func appliedMigrations(database *sql.DB) (map[string]bool, error) {
	rows, err := database.Query(`SELECT filename FROM _migrations`)
	if err != nil {
		return nil, fmt.Errorf("read migrations ledger: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

func pendingMigrations(migrationFS fs.FS, done map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var pending []string
	for _, e := range entries {
		if e.IsDir() || done[e.Name()] {
			continue
		}
		pending = append(pending, e.Name())
	}
	sort.Strings(pending)
	return pending, nil
}

// applyMigration runs one file and its ledger insert in a single
// transaction, so a failed migration leaves no ledger entry behind.
func applyMigration(database *sql.DB, migrationFS fs.FS, name string) error {
	content, err := fs.ReadFile(migrationFS, "migrations/"+name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := database.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	if _, err := tx.Exec(string(content)); err != nil {
		tx.Rollback()
		return fmt.Errorf("exec migration %s: %w", name, err)
	}
	if _, err := tx.Exec(`INSERT INTO _migrations (filename) VALUES (?)`, name); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}
