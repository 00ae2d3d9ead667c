package migrations

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Unique execution per recorded run",
		Up: `
			-- A re-watched execution replaces its previous record
			CREATE UNIQUE INDEX IF NOT EXISTS idx_watch_runs_execution ON watch_runs(execution_id);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_watch_runs_execution;
		`,
	},
	{
		Version: 2,
		Name:    "Add byte rate unit to watch_runs",
		Up: `
			-- brps_unit column already exists in current schema
			-- This migration is kept for backward compatibility with older databases
		`,
		Down: `
			-- SQLite does not support DROP COLUMN easily
		`,
	},
	{
		Version: 3,
		Name:    "Add composite index for tick lookups",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_watch_ticks_run_timestamp ON watch_ticks(run_id, timestamp);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_watch_ticks_run_timestamp;
		`,
	},
}

// InitSchema creates all tables required across all modules
// This must be called before running migrations to ensure all tables exist
func InitSchema(db *sql.DB) error {
	schema := `
	-- Watched executions that reached a terminal status
	CREATE TABLE IF NOT EXISTS watch_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		execution_id TEXT NOT NULL,
		name TEXT,
		status TEXT NOT NULL,
		started_at TEXT,
		ended_at TEXT,
		recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		ticks INTEGER NOT NULL DEFAULT 0,
		max_ops REAL DEFAULT 0,
		mean_ops REAL DEFAULT 0,
		max_tps REAL DEFAULT 0,
		mean_tps REAL DEFAULT 0,
		max_brps REAL DEFAULT 0,
		max_bwps REAL DEFAULT 0,
		brps_unit TEXT NOT NULL DEFAULT 'KB',
		total_errors INTEGER DEFAULT 0,
		total_samples REAL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_watch_runs_recorded_at ON watch_runs(recorded_at DESC);
	CREATE INDEX IF NOT EXISTS idx_watch_runs_status ON watch_runs(status);

	-- Total series of a recorded run, one row per tick
	CREATE TABLE IF NOT EXISTS watch_ticks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		ops REAL DEFAULT 0,
		tps REAL DEFAULT 0,
		brps REAL DEFAULT 0,
		bwps REAL DEFAULT 0,
		errors REAL DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES watch_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_watch_ticks_run_id ON watch_ticks(run_id);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	// Initialize schema first to ensure all tables exist
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Create migrations tracking table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	// Apply pending migrations
	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		if _, err := db.Exec(migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		_, err = db.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}
