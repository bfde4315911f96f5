package domain

import "time"

// RunStatus enumerates the pipeline run lifecycle. A run starts as
// StatusRunning and is finalized exactly once to one of the other three.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusOK      RunStatus = "ok"
	StatusWarn    RunStatus = "warn"
	StatusError   RunStatus = "error"
)

// RunKind identifies what kind of pipeline execution a run was.
type RunKind string

const (
	RunKindScan   RunKind = "scan"
	RunKindDigest RunKind = "digest"
)

// Run records one pipeline execution.
type Run struct {
	ID         string
	Kind       RunKind
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Stats      RunStats
}

// RunStats is the accumulator persisted with each run. Stages build their
// own value and the pieces are merged once at finalization.
type RunStats struct {
	CategoriesScanned int      `json:"categories_scanned"`
	CategoriesFailed  int      `json:"categories_failed"`
	EntriesSeen       int      `json:"entries_seen"`
	EntriesInWindow   int      `json:"entries_in_window"`
	PapersUpserted    int      `json:"papers_upserted"`
	MatchesRecorded   int      `json:"matches_recorded"`
	RelevanceScored   int      `json:"relevance_scored"`
	DocsDownloaded    int      `json:"docs_downloaded"`
	CorruptRepaired   int      `json:"corrupt_repaired"`
	TextsExtracted    int      `json:"texts_extracted"`
	ArtifactFailures  int      `json:"artifact_failures"`
	Errors            []string `json:"errors,omitempty"`
}

// Merge combines two stage results into one accumulator.
func (s RunStats) Merge(other RunStats) RunStats {
	out := s
	out.CategoriesScanned += other.CategoriesScanned
	out.CategoriesFailed += other.CategoriesFailed
	out.EntriesSeen += other.EntriesSeen
	out.EntriesInWindow += other.EntriesInWindow
	out.PapersUpserted += other.PapersUpserted
	out.MatchesRecorded += other.MatchesRecorded
	out.RelevanceScored += other.RelevanceScored
	out.DocsDownloaded += other.DocsDownloaded
	out.CorruptRepaired += other.CorruptRepaired
	out.TextsExtracted += other.TextsExtracted
	out.ArtifactFailures += other.ArtifactFailures
	out.Errors = append(append([]string{}, s.Errors...), other.Errors...)
	return out
}
