package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/studiowebux/perfwatch/internal/config"
	"github.com/studiowebux/perfwatch/internal/migrations"
	"github.com/studiowebux/perfwatch/internal/session"
)

// Manager handles watch history persistence
type Manager struct {
	db *sql.DB
}

// NewManager opens the history database, creating it when needed
func NewManager(dbPath string) (*Manager, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), config.DirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Run database migrations (includes schema initialization)
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Manager{db: db}, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

// RecordRun stores the summary and Total series of a finished watch.
// A previous record of the same execution is replaced.
func (m *Manager) RecordRun(ctx context.Context, snap *session.Snapshot) error {
	run, ticks := Summarize(snap)
	return m.SaveRun(ctx, run, ticks)
}

// SaveRun inserts a run and its ticks in a single transaction
func (m *Manager) SaveRun(ctx context.Context, run *Run, ticks []*Tick) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteRunsTx(ctx, tx, "execution_id = ?", run.ExecutionID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO watch_runs
		(execution_id, name, status, started_at, ended_at, ticks, max_ops, mean_ops, max_tps, mean_tps,
		 max_brps, max_bwps, brps_unit, total_errors, total_samples)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ExecutionID, run.Name, run.Status, run.StartedAt, run.EndedAt, run.Ticks,
		run.MaxOps, run.MeanOps, run.MaxTps, run.MeanTps, run.MaxBrps, run.MaxBwps,
		run.BrpsUnit, run.TotalErrors, run.TotalSamples)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id

	if len(ticks) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO watch_ticks (run_id, timestamp, ops, tps, brps, bwps, errors)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, tick := range ticks {
			tick.RunID = id
			if _, err := stmt.ExecContext(ctx, id, tick.Timestamp, tick.Ops, tick.Tps, tick.Brps, tick.Bwps, tick.Errors); err != nil {
				return fmt.Errorf("failed to insert tick: %w", err)
			}
		}
	}

	return tx.Commit()
}

const runColumns = `id, execution_id, COALESCE(name, ''), status, COALESCE(started_at, ''), COALESCE(ended_at, ''),
	recorded_at, ticks, COALESCE(max_ops, 0), COALESCE(mean_ops, 0), COALESCE(max_tps, 0), COALESCE(mean_tps, 0),
	COALESCE(max_brps, 0), COALESCE(max_bwps, 0), brps_unit, COALESCE(total_errors, 0), COALESCE(total_samples, 0)`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	err := row.Scan(&run.ID, &run.ExecutionID, &run.Name, &run.Status, &run.StartedAt, &run.EndedAt,
		&run.RecordedAt, &run.Ticks, &run.MaxOps, &run.MeanOps, &run.MaxTps, &run.MeanTps,
		&run.MaxBrps, &run.MaxBwps, &run.BrpsUnit, &run.TotalErrors, &run.TotalSamples)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (m *Manager) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := m.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM watch_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return run, nil
}

// GetRunByExecution retrieves the record of an execution
func (m *Manager) GetRunByExecution(ctx context.Context, execID string) (*Run, error) {
	row := m.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM watch_runs WHERE execution_id = ?", execID)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get run of execution %s: %w", execID, err)
	}
	return run, nil
}

// ListRuns returns recorded runs, most recent first
func (m *Manager) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM watch_runs ORDER BY recorded_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetTicks retrieves the Total series of a run
func (m *Manager) GetTicks(ctx context.Context, runID int64) ([]*Tick, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, run_id, timestamp, COALESCE(ops, 0), COALESCE(tps, 0), COALESCE(brps, 0),
		       COALESCE(bwps, 0), COALESCE(errors, 0)
		FROM watch_ticks
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticks: %w", err)
	}
	defer rows.Close()

	var ticks []*Tick
	for rows.Next() {
		tick := &Tick{}
		if err := rows.Scan(&tick.ID, &tick.RunID, &tick.Timestamp, &tick.Ops, &tick.Tps,
			&tick.Brps, &tick.Bwps, &tick.Errors); err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	return ticks, rows.Err()
}

// DeleteRun deletes a run and its ticks
func (m *Manager) DeleteRun(ctx context.Context, id int64) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteRunsTx(ctx, tx, "id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteRunsTx removes matching runs and their ticks.
// Ticks are deleted explicitly since sqlite foreign keys are off by default.
func deleteRunsTx(ctx context.Context, tx *sql.Tx, where string, arg any) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM watch_ticks WHERE run_id IN (SELECT id FROM watch_runs WHERE "+where+")", arg); err != nil {
		return fmt.Errorf("failed to delete ticks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM watch_runs WHERE "+where, arg); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}
