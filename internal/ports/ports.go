package ports

import (
	"context"
	"errors"
	"net/url"
	"time"

	"PaperTracker/internal/domain"
)

// ErrAlreadySent is returned by DeliveryLedger.MarkSent when the period was
// already recorded; the losing caller must not re-send.
var ErrAlreadySent = errors.New("delivery period already recorded")

// Fetcher retrieves raw payloads over HTTP with retry and pacing built in.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, query url.Values) ([]byte, error)
	Pause(ctx context.Context) error
}

// PaperRepository persists paper identity and per-track match records.
type PaperRepository interface {
	UpsertPaper(ctx context.Context, paper domain.Paper) error
	UpsertMatch(ctx context.Context, match domain.TrackMatch) error
	SetRelevance(ctx context.Context, externalID string, score float64) error
	UpdateArtifact(ctx context.Context, externalID, docPath, textPath, metaPath, docHash string) error
	ListMatchedMissingArtifacts(ctx context.Context, limit int) ([]domain.ArtifactCandidate, error)
}

// DigestQuery narrows the digest candidate pool.
type DigestQuery struct {
	Tracks       []string
	MinRelevance *float64
	// DedupCutoff is the earliest period key still blocking redelivery.
	// Empty disables the dedup exclusion.
	DedupCutoff string
}

// DigestSource lists delivery candidates from storage.
type DigestSource interface {
	ListDigestCandidates(ctx context.Context, q DigestQuery) ([]domain.DigestCandidate, error)
}

// RunRepository persists run lifecycle records.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.Run) error
	FinalizeRun(ctx context.Context, runID string, status domain.RunStatus, finishedAt time.Time, stats domain.RunStats) error
}

// ArtifactManager ensures the document and extracted text exist for a paper.
type ArtifactManager interface {
	Ensure(ctx context.Context, candidate domain.ArtifactCandidate) (domain.ArtifactResult, error)
	WriteMetadata(paper domain.Paper) (string, error)
}

// DeliveryLedger is the idempotency record for delivered periods.
type DeliveryLedger interface {
	HasBeenSent(ctx context.Context, periodKey string) (bool, error)
	MarkSent(ctx context.Context, periodKey string, payload []byte, items []domain.DeliveryItem) error
}

// RelevanceScorer pushes abstracts to an external model for scoring.
type RelevanceScorer interface {
	Rank(ctx context.Context, paper domain.Paper) (float64, error)
}

// Notifier streams digest messages to an outbound channel.
type Notifier interface {
	Publish(ctx context.Context, message string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
