// Package run records the lifecycle and outcome of pipeline executions.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/ports"
)

// Tracker drives the run state machine: running → {ok, warn, error}, with
// finalization happening exactly once (enforced by the repository guard).
type Tracker struct {
	repo   ports.RunRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker wires the run repository.
func NewTracker(repo ports.RunRepository, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{repo: repo, logger: logger, now: time.Now}
}

// Begin opens a run in the running state with an empty stats accumulator.
func (t *Tracker) Begin(ctx context.Context, kind domain.RunKind) (domain.Run, error) {
	run := domain.Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: t.now().UTC(),
		Status:    domain.StatusRunning,
	}
	if err := t.repo.CreateRun(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("open run: %w", err)
	}
	t.logger.Info("run started", "run_id", run.ID, "kind", string(kind))
	return run, nil
}

// Finish finalizes a completed run: ok when no category fetch failed, warn
// when one or more did but the pipeline otherwise completed. Per-paper
// artifact failures are counted in the stats without degrading the status.
func (t *Tracker) Finish(ctx context.Context, run domain.Run, stats domain.RunStats) (domain.RunStatus, error) {
	status := domain.StatusOK
	if stats.CategoriesFailed > 0 {
		status = domain.StatusWarn
	}
	if err := t.repo.FinalizeRun(ctx, run.ID, status, t.now().UTC(), stats); err != nil {
		return status, fmt.Errorf("finalize run: %w", err)
	}
	t.logger.Info("run finished",
		"run_id", run.ID,
		"status", string(status),
		"categories_failed", stats.CategoriesFailed,
		"papers_upserted", stats.PapersUpserted,
		"matches_recorded", stats.MatchesRecorded)
	return status, nil
}

// Fail finalizes a run aborted by an unexpected error. Partial stats plus
// the error message are persisted; the caller re-raises the original error.
func (t *Tracker) Fail(ctx context.Context, run domain.Run, stats domain.RunStats, cause error) {
	stats.Errors = append(stats.Errors, cause.Error())
	if err := t.repo.FinalizeRun(ctx, run.ID, domain.StatusError, t.now().UTC(), stats); err != nil {
		t.logger.Error("could not persist failed run", "run_id", run.ID, "error", err)
		return
	}
	t.logger.Error("run failed", "run_id", run.ID, "error", cause)
}
