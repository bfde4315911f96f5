package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/ports"
)

var _ ports.RunRepository = (*DB)(nil)

// CreateRun inserts a new run in its initial state.
func (db *DB) CreateRun(ctx context.Context, run domain.Run) error {
	stats, _ := json.Marshal(run.Stats)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO runs (run_id, kind, started_at, status, stats)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, string(run.Kind), run.StartedAt, string(run.Status), string(stats))
	if err != nil {
		return fmt.Errorf("storage: create run %s: %w", run.ID, err)
	}
	return nil
}

// FinalizeRun transitions a running run to its terminal status. The guard on
// the current status makes finalization happen at most once; a second call
// returns ErrRunFinalized.
func (db *DB) FinalizeRun(ctx context.Context, runID string, status domain.RunStatus, finishedAt time.Time, stats domain.RunStats) error {
	blob, _ := json.Marshal(stats)
	result, err := db.conn.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, stats = ?
		WHERE run_id = ? AND status = ?
	`, string(status), finishedAt, string(blob), runID, string(domain.StatusRunning))
	if err != nil {
		return fmt.Errorf("storage: finalize run %s: %w", runID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: finalize run %s rows affected: %w", runID, err)
	}
	if rows == 0 {
		return fmt.Errorf("storage: finalize run %s: %w", runID, ErrRunFinalized)
	}
	return nil
}

// GetRun loads one run by ID.
func (db *DB) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT run_id, kind, started_at, finished_at, status, stats
		FROM runs WHERE run_id = ?
	`, runID)

	var run domain.Run
	var kind, status, stats string
	var finished sql.NullTime
	if err := row.Scan(&run.ID, &kind, &run.StartedAt, &finished, &status, &stats); err != nil {
		return domain.Run{}, fmt.Errorf("storage: get run %s: %w", runID, err)
	}
	run.Kind = domain.RunKind(kind)
	run.Status = domain.RunStatus(status)
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	_ = json.Unmarshal([]byte(stats), &run.Stats)
	return run, nil
}
