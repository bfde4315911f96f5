// Package digest ranks and caps eligible papers into a bounded delivery set.
package digest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/ports"
)

// Options bound one selection. Zero caps mean unlimited; a zero DedupDays
// disables the redelivery exclusion entirely.
type Options struct {
	MaxTotal     int
	MaxPerTrack  int
	DedupDays    int
	Tracks       []string
	MinRelevance *float64
	// TrackCaps optionally tightens MaxPerTrack for individual tracks.
	TrackCaps map[string]int
}

// Selector builds delivery sets from the repository's candidate pool.
type Selector struct {
	source ports.DigestSource
	now    func() time.Time
}

// NewSelector wires the candidate source.
func NewSelector(source ports.DigestSource) *Selector {
	return &Selector{source: source, now: time.Now}
}

// Select ranks the candidate pool and groups it by track. Scored papers rank
// above unscored; within each band, higher match score first, then more
// recent matches. Groups appear in the order their track first appears in
// the ranked stream; a paper matched by several tracks lands only in its
// highest-ranked group. An empty pool yields an empty digest, not an error.
func (s *Selector) Select(ctx context.Context, opts Options) (domain.Digest, error) {
	query := ports.DigestQuery{Tracks: opts.Tracks, MinRelevance: opts.MinRelevance}
	if opts.DedupDays > 0 {
		query.DedupCutoff = s.now().UTC().AddDate(0, 0, -opts.DedupDays).Format("2006-01-02")
	}

	candidates, err := s.source.ListDigestCandidates(ctx, query)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("list digest candidates: %w", err)
	}

	rank(candidates)

	var (
		groups     []domain.DigestGroup
		groupIndex = map[string]int{}
		chosen     = map[string]bool{}
		total      int
	)
	for _, cand := range candidates {
		if opts.MaxTotal > 0 && total >= opts.MaxTotal {
			break
		}
		if chosen[cand.ExternalID] {
			continue
		}

		limit := opts.MaxPerTrack
		if trackCap, ok := opts.TrackCaps[cand.TrackName]; ok && trackCap > 0 && (limit <= 0 || trackCap < limit) {
			limit = trackCap
		}

		gi, ok := groupIndex[cand.TrackName]
		if !ok {
			groups = append(groups, domain.DigestGroup{Track: cand.TrackName})
			gi = len(groups) - 1
			groupIndex[cand.TrackName] = gi
		}
		if limit > 0 && len(groups[gi].Papers) >= limit {
			continue
		}

		groups[gi].Papers = append(groups[gi].Papers, cand)
		chosen[cand.ExternalID] = true
		total++
	}

	// Tracks whose every candidate was claimed by an earlier group leave an
	// empty shell behind; drop those.
	filtered := groups[:0]
	for _, g := range groups {
		if len(g.Papers) > 0 {
			filtered = append(filtered, g)
		}
	}

	return domain.Digest{
		PeriodKey: s.now().UTC().Format("2006-01-02"),
		Groups:    filtered,
		Total:     total,
	}, nil
}

func rank(candidates []domain.DigestCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		scoredI, scoredJ := candidates[i].Relevance != nil, candidates[j].Relevance != nil
		if scoredI != scoredJ {
			return scoredI
		}
		if candidates[i].MatchScore != candidates[j].MatchScore {
			return candidates[i].MatchScore > candidates[j].MatchScore
		}
		return candidates[i].MatchedAt.After(candidates[j].MatchedAt)
	})
}
