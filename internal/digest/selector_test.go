package digest

import (
	"context"
	"testing"
	"time"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/ports"
)

type fakeSource struct {
	candidates []domain.DigestCandidate
	lastQuery  ports.DigestQuery
}

func (f *fakeSource) ListDigestCandidates(ctx context.Context, q ports.DigestQuery) ([]domain.DigestCandidate, error) {
	f.lastQuery = q
	return f.candidates, nil
}

func relevance(v float64) *float64 { return &v }

func at(day int) time.Time {
	return time.Date(2024, time.February, day, 0, 0, 0, 0, time.UTC)
}

func TestSelectRanksScoredAboveUnscored(t *testing.T) {
	t.Parallel()

	source := &fakeSource{candidates: []domain.DigestCandidate{
		{ExternalID: "a", TrackName: "t1", MatchScore: 9, MatchedAt: at(1)},
		{ExternalID: "b", TrackName: "t1", MatchScore: 1, MatchedAt: at(2), Relevance: relevance(0.4)},
	}}
	selector := NewSelector(source)

	digest, err := selector.Select(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(digest.Groups) != 1 {
		t.Fatalf("expected one group, got %d", len(digest.Groups))
	}
	papers := digest.Groups[0].Papers
	if papers[0].ExternalID != "b" || papers[1].ExternalID != "a" {
		t.Fatalf("relevance-scored paper must outrank unscored: %+v", papers)
	}
}

func TestSelectOrdersByMatchScoreThenRecency(t *testing.T) {
	t.Parallel()

	source := &fakeSource{candidates: []domain.DigestCandidate{
		{ExternalID: "older", TrackName: "t", MatchScore: 4, MatchedAt: at(1)},
		{ExternalID: "newer", TrackName: "t", MatchScore: 4, MatchedAt: at(5)},
		{ExternalID: "high", TrackName: "t", MatchScore: 7, MatchedAt: at(1)},
	}}
	selector := NewSelector(source)

	digest, err := selector.Select(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	papers := digest.Groups[0].Papers
	want := []string{"high", "newer", "older"}
	for i, id := range want {
		if papers[i].ExternalID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, papers[i].ExternalID)
		}
	}
}

func TestSelectHonorsCaps(t *testing.T) {
	t.Parallel()

	var candidates []domain.DigestCandidate
	for i, track := range []string{"t1", "t1", "t1", "t2", "t2", "t3"} {
		candidates = append(candidates, domain.DigestCandidate{
			ExternalID: string(rune('a' + i)),
			TrackName:  track,
			MatchScore: float64(10 - i),
			MatchedAt:  at(1),
		})
	}
	selector := NewSelector(&fakeSource{candidates: candidates})

	digest, err := selector.Select(context.Background(), Options{MaxTotal: 4, MaxPerTrack: 2})
	if err != nil {
		t.Fatal(err)
	}
	if digest.Total > 4 {
		t.Fatalf("total cap violated: %d", digest.Total)
	}
	for _, g := range digest.Groups {
		if len(g.Papers) > 2 {
			t.Fatalf("per-track cap violated in %s: %d", g.Track, len(g.Papers))
		}
	}
}

func TestSelectPerTrackCapOverride(t *testing.T) {
	t.Parallel()

	candidates := []domain.DigestCandidate{
		{ExternalID: "a", TrackName: "t", MatchScore: 3, MatchedAt: at(1)},
		{ExternalID: "b", TrackName: "t", MatchScore: 2, MatchedAt: at(1)},
		{ExternalID: "c", TrackName: "t", MatchScore: 1, MatchedAt: at(1)},
	}
	selector := NewSelector(&fakeSource{candidates: candidates})

	digest, err := selector.Select(context.Background(), Options{
		MaxPerTrack: 5,
		TrackCaps:   map[string]int{"t": 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(digest.Groups[0].Papers) != 1 {
		t.Fatalf("track-specific cap must win when tighter: %d", len(digest.Groups[0].Papers))
	}
}

func TestSelectGroupsInFirstAppearanceOrder(t *testing.T) {
	t.Parallel()

	candidates := []domain.DigestCandidate{
		{ExternalID: "a", TrackName: "late", MatchScore: 1, MatchedAt: at(1)},
		{ExternalID: "b", TrackName: "early", MatchScore: 9, MatchedAt: at(1)},
	}
	selector := NewSelector(&fakeSource{candidates: candidates})

	digest, err := selector.Select(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if digest.Groups[0].Track != "early" || digest.Groups[1].Track != "late" {
		t.Fatalf("groups must follow ranked-stream order: %+v", digest.Groups)
	}
}

func TestSelectDeduplicatesPapersAcrossTracks(t *testing.T) {
	t.Parallel()

	candidates := []domain.DigestCandidate{
		{ExternalID: "same", TrackName: "t1", MatchScore: 9, MatchedAt: at(1)},
		{ExternalID: "same", TrackName: "t2", MatchScore: 3, MatchedAt: at(1)},
	}
	selector := NewSelector(&fakeSource{candidates: candidates})

	digest, err := selector.Select(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if digest.Total != 1 {
		t.Fatalf("a paper may appear only once, got total %d", digest.Total)
	}
	if len(digest.Groups) != 1 || digest.Groups[0].Track != "t1" {
		t.Fatalf("paper must land in its highest-ranked group: %+v", digest.Groups)
	}
}

func TestSelectEmptyPool(t *testing.T) {
	t.Parallel()

	selector := NewSelector(&fakeSource{})

	digest, err := selector.Select(context.Background(), Options{MaxTotal: 10})
	if err != nil {
		t.Fatalf("empty pool must not be an error: %v", err)
	}
	if digest.Total != 0 || len(digest.Groups) != 0 {
		t.Fatalf("expected empty digest, got %+v", digest)
	}
}

func TestSelectDedupWindowQuery(t *testing.T) {
	t.Parallel()

	source := &fakeSource{}
	selector := NewSelector(source)
	selector.now = func() time.Time {
		return time.Date(2024, time.February, 10, 8, 0, 0, 0, time.UTC)
	}

	if _, err := selector.Select(context.Background(), Options{DedupDays: 7}); err != nil {
		t.Fatal(err)
	}
	if source.lastQuery.DedupCutoff != "2024-02-03" {
		t.Fatalf("unexpected dedup cutoff: %s", source.lastQuery.DedupCutoff)
	}

	if _, err := selector.Select(context.Background(), Options{DedupDays: 0}); err != nil {
		t.Fatal(err)
	}
	if source.lastQuery.DedupCutoff != "" {
		t.Fatal("a zero window must disable the dedup exclusion")
	}
}
