package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with annotations and recognition logs",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add label fingerprints for integrity checks",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
}

// Migration SQL statements

const migrationV1Up = `
-- One row per manuscript line
CREATE TABLE IF NOT EXISTS annotations (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    manuscript          TEXT NOT NULL,
    page                TEXT NOT NULL,
    line                INTEGER NOT NULL,
    image_path          TEXT NOT NULL DEFAULT '',
    predicted_label     TEXT NOT NULL DEFAULT '',
    confidence_score    REAL NOT NULL DEFAULT 0,
    ground_truth        TEXT,
    levenshtein_distance INTEGER,
    created_at          INTEGER NOT NULL,
    updated_at          INTEGER NOT NULL,
    UNIQUE(manuscript, page, line)
);

CREATE INDEX IF NOT EXISTS idx_annotations_page ON annotations(manuscript, page, line);

-- Raw recognizer output
CREATE TABLE IF NOT EXISTS recognition_logs (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    image_path          TEXT NOT NULL,
    predicted_label     TEXT NOT NULL,
    confidence_score    REAL NOT NULL,
    timestamp           INTEGER NOT NULL,
    manuscript          TEXT NOT NULL DEFAULT '',
    page                TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_recognition_manuscript ON recognition_logs(manuscript, page);
`

const migrationV1Down = `
DROP INDEX IF EXISTS idx_recognition_manuscript;
DROP TABLE IF EXISTS recognition_logs;
DROP INDEX IF EXISTS idx_annotations_page;
DROP TABLE IF EXISTS annotations;
`

const migrationV2Up = `
ALTER TABLE annotations ADD COLUMN fingerprint BLOB;
`

const migrationV2Down = `
ALTER TABLE annotations DROP COLUMN fingerprint;
`

// MigrateDB applies all pending migrations to the database.
func MigrateDB(db *sql.DB) error {
	// Ensure migrations table exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	currentVersion, err := currentVersion(db)
	if err != nil {
		return err
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

// RollbackMigration rolls back the last applied migration.
func RollbackMigration(db *sql.DB) error {
	current, err := currentVersion(db)
	if err != nil {
		return err
	}

	if current == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range migrations {
		if migrations[i].Version == current {
			migration = &migrations[i]
			break
		}
	}

	if migration == nil {
		return fmt.Errorf("migration %d not found", current)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.Exec(migration.Down); err != nil {
		tx.Rollback()
		return fmt.Errorf("rollback migration %d: %w", current, err)
	}

	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", current); err != nil {
		tx.Rollback()
		return fmt.Errorf("remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback: %w", err)
	}

	return nil
}

// MigrationStatus describes applied and pending migrations.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
	Applied        []AppliedMigration
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
}

// GetMigrationStatus returns the current migration status.
func GetMigrationStatus(db *sql.DB) (*MigrationStatus, error) {
	status := &MigrationStatus{
		LatestVersion: migrations[len(migrations)-1].Version,
	}

	rows, err := db.Query("SELECT version, applied_at, description FROM schema_migrations ORDER BY version")
	if err != nil {
		// Table might not exist yet
		status.Pending = migrations
		return status, nil
	}
	defer rows.Close()

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var am AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&am.Version, &appliedAt, &am.Description); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		am.AppliedAt = time.Unix(0, appliedAt)
		status.Applied = append(status.Applied, am)
		appliedVersions[am.Version] = true

		if am.Version > status.CurrentVersion {
			status.CurrentVersion = am.Version
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}

	for _, m := range migrations {
		if !appliedVersions[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}

	return status, nil
}

// ValidateSchema checks that all expected tables exist.
func ValidateSchema(db *sql.DB) error {
	requiredTables := []string{
		"annotations",
		"recognition_logs",
		"schema_migrations",
	}

	for _, table := range requiredTables {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("missing required table: %s", table)
		}
	}

	return nil
}
