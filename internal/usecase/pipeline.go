// Package usecase orchestrates the scan and digest workflows over the ports.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/infrastructure/feed"
	"PaperTracker/internal/observability"
	"PaperTracker/internal/ports"
	"PaperTracker/internal/run"
	"PaperTracker/internal/track"
)

// PipelineDeps wires the driven adapters into the scan pipeline.
type PipelineDeps struct {
	Fetcher   ports.Fetcher
	Repo      ports.PaperRepository
	Artifacts ports.ArtifactManager
	// Scorer is optional; scoring failures never fail a run.
	Scorer  ports.RelevanceScorer
	Tracker *run.Tracker
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// PipelineConfig carries the scan parameters resolved from configuration.
type PipelineConfig struct {
	BaseURL         string
	Categories      []string
	WindowDays      int
	MaxResults      int
	ArtifactsPerRun int
	Tracks          []domain.Track
}

// Pipeline implements the scan workflow: discover feed entries, match them
// against tracks, then complete missing artifacts for matched papers.
type Pipeline struct {
	cfg       PipelineConfig
	fetcher   ports.Fetcher
	repo      ports.PaperRepository
	artifacts ports.ArtifactManager
	scorer    ports.RelevanceScorer
	tracker   *run.Tracker
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		repo:      deps.Repo,
		artifacts: deps.Artifacts,
		scorer:    deps.Scorer,
		tracker:   deps.Tracker,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one scan. Per-category fetch failures degrade the run to warn;
// storage failures abort it with status error. The run record is finalized on
// every path.
func (p *Pipeline) Run(ctx context.Context) error {
	r, err := p.tracker.Begin(ctx, domain.RunKindScan)
	if err != nil {
		return err
	}
	now := p.now().UTC()

	stats, err := p.discover(ctx, now)
	if err != nil {
		p.tracker.Fail(ctx, r, stats, err)
		p.metrics.RunFinished(string(domain.StatusError))
		return err
	}

	artStats, err := p.fillArtifacts(ctx)
	stats = stats.Merge(artStats)
	if err != nil {
		p.tracker.Fail(ctx, r, stats, err)
		p.metrics.RunFinished(string(domain.StatusError))
		return err
	}

	status, err := p.tracker.Finish(ctx, r, stats)
	if err != nil {
		return err
	}
	p.metrics.RunFinished(string(status))
	return nil
}

func (p *Pipeline) discover(ctx context.Context, now time.Time) (domain.RunStats, error) {
	var stats domain.RunStats

	for i, category := range p.cfg.Categories {
		if i > 0 {
			if err := p.fetcher.Pause(ctx); err != nil {
				return stats, err
			}
		}

		body, err := p.fetcher.Get(ctx, p.cfg.BaseURL, feed.Query(category, p.cfg.MaxResults))
		if err != nil {
			stats.CategoriesFailed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("category %s: %v", category, err))
			p.metrics.FetchFailed("feed")
			p.logger.Warn("category fetch failed", "category", category, "error", err)
			continue
		}

		entries, err := feed.Parse(body)
		if err != nil {
			stats.CategoriesFailed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("category %s: %v", category, err))
			p.logger.Warn("category payload undecodable", "category", category, "error", err)
			continue
		}

		stats.CategoriesScanned++
		stats.EntriesSeen += len(entries)

		for _, entry := range entries {
			if !feed.WithinWindow(entry, p.cfg.WindowDays, now) {
				continue
			}
			stats.EntriesInWindow++
			if err := p.ingest(ctx, entry, now, &stats); err != nil {
				return stats, err
			}
		}
	}

	return stats, nil
}

func (p *Pipeline) ingest(ctx context.Context, entry domain.NormalizedEntry, now time.Time, stats *domain.RunStats) error {
	paper := paperFromEntry(entry, now)
	if err := p.repo.UpsertPaper(ctx, paper); err != nil {
		return err
	}
	stats.PapersUpserted++
	p.metrics.PaperIngested()

	if metaPath, err := p.artifacts.WriteMetadata(paper); err != nil {
		p.logger.Warn("metadata write failed", "paper", entry.ExternalID, "error", err)
	} else if err := p.repo.UpdateArtifact(ctx, entry.ExternalID, "", "", metaPath, ""); err != nil {
		return err
	}

	matched := false
	for _, profile := range p.cfg.Tracks {
		if profile.Disabled || !profile.AllowsCategories(entry.Categories) {
			continue
		}
		score, terms := track.Score(profile, entry.Title, entry.Summary)
		if score <= 0 || score < profile.Threshold {
			continue
		}
		match := domain.TrackMatch{
			ExternalID:   entry.ExternalID,
			TrackName:    profile.Name,
			Score:        score,
			MatchedTerms: terms,
			MatchedAt:    now,
		}
		if err := p.repo.UpsertMatch(ctx, match); err != nil {
			return err
		}
		stats.MatchesRecorded++
		p.metrics.MatchRecorded(profile.Name)
		matched = true
	}

	if matched && p.scorer != nil {
		score, err := p.scorer.Rank(ctx, paper)
		if err != nil {
			p.logger.Warn("relevance scoring failed", "paper", entry.ExternalID, "error", err)
		} else if err := p.repo.SetRelevance(ctx, entry.ExternalID, score); err != nil {
			return err
		} else {
			stats.RelevanceScored++
		}
	}

	return nil
}

func (p *Pipeline) fillArtifacts(ctx context.Context) (domain.RunStats, error) {
	var stats domain.RunStats

	limit := p.cfg.ArtifactsPerRun
	if limit <= 0 {
		return stats, nil
	}

	cands, err := p.repo.ListMatchedMissingArtifacts(ctx, limit)
	if err != nil {
		return stats, err
	}

	for i, cand := range cands {
		if i > 0 {
			if err := p.fetcher.Pause(ctx); err != nil {
				return stats, err
			}
		}

		res, err := p.artifacts.Ensure(ctx, cand)
		if err != nil {
			stats.ArtifactFailures++
			stats.Errors = append(stats.Errors, fmt.Sprintf("artifact %s: %v", cand.ExternalID, err))
			p.metrics.FetchFailed("artifact")
			p.logger.Warn("artifact retrieval failed", "paper", cand.ExternalID, "error", err)
			continue
		}

		if res.Downloaded {
			stats.DocsDownloaded++
			p.metrics.DocumentDownloaded()
		}
		if res.Repaired {
			stats.CorruptRepaired++
			p.metrics.CorruptDocument()
		}
		if res.Extracted {
			stats.TextsExtracted++
			p.metrics.TextExtracted()
		}

		if err := p.repo.UpdateArtifact(ctx, cand.ExternalID, res.DocPath, res.TextPath, "", res.DocHash); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func paperFromEntry(entry domain.NormalizedEntry, now time.Time) domain.Paper {
	return domain.Paper{
		ExternalID:  entry.ExternalID,
		Revision:    entry.Revision,
		Title:       entry.Title,
		Abstract:    entry.Summary,
		Authors:     entry.Authors,
		Categories:  entry.Categories,
		AbsURL:      entry.AbsURL,
		PDFURL:      entry.PDFURL,
		PublishedAt: entry.PublishedAt,
		UpdatedAt:   entry.UpdatedAt,
		IngestedAt:  now,
	}
}
