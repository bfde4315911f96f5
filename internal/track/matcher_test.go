package track

import (
	"reflect"
	"testing"

	"PaperTracker/internal/domain"
)

func TestScoreExclusionAlwaysWins(t *testing.T) {
	t.Parallel()

	profile := domain.Track{
		Name:       "agents",
		Phrases:    []string{"tool use"},
		Keywords:   []string{"agent"},
		Exclusions: []string{"survey"},
	}

	score, terms := Score(profile, "A Survey of Agent Tool Use", "agents using tool use everywhere")
	if score != 0 {
		t.Fatalf("exclusion must force score 0, got %v", score)
	}
	if len(terms) != 0 {
		t.Fatalf("exclusion must clear matched terms, got %v", terms)
	}
}

func TestScorePhrasesAndKeywords(t *testing.T) {
	t.Parallel()

	profile := domain.Track{
		Name:     "agents",
		Phrases:  []string{"tool use", "function calling"},
		Keywords: []string{"agent", "planner"},
	}

	score, terms := Score(profile, "Agent tool use", "an agent performing tool use and planning")
	// "tool use" phrase (+3) and "agent" keyword (+1); the phrase appears
	// twice but terms are deduplicated while weight accrues per list entry.
	if score != 4 {
		t.Fatalf("expected score 4, got %v", score)
	}
	want := []string{"tool use", "agent"}
	if !reflect.DeepEqual(terms, want) {
		t.Fatalf("expected terms %v, got %v", want, terms)
	}
}

func TestScoreKeywordWordBoundary(t *testing.T) {
	t.Parallel()

	profile := domain.Track{Name: "rain", Keywords: []string{"rain"}}

	if score, _ := Score(profile, "Training dynamics", "we train networks"); score != 0 {
		t.Fatalf("substring inside a word must not match, got %v", score)
	}
	if score, _ := Score(profile, "Rain prediction", "forecasting rain."); score != 1 {
		t.Fatalf("word-boundary keyword must match once per list entry, got %v", score)
	}
}

func TestScoreKeywordBoundaryMultibyte(t *testing.T) {
	t.Parallel()

	profile := domain.Track{Name: "agents", Keywords: []string{"agent"}}

	// An accented letter adjoining the keyword is still a letter; reading it
	// byte-by-byte would see a continuation byte and wrongly call it a boundary.
	if score, _ := Score(profile, "caféagent systems", ""); score != 0 {
		t.Fatalf("keyword glued to a multi-byte letter must not match, got %v", score)
	}
	// Multi-byte punctuation is a real boundary even though its first byte
	// casts to a Latin-1 letter.
	if score, _ := Score(profile, "agent—based planning", ""); score != 1 {
		t.Fatalf("keyword before multi-byte punctuation must match, got %v", score)
	}
	if score, _ := Score(profile, "café agent systems", ""); score != 1 {
		t.Fatalf("keyword after a multi-byte word must match, got %v", score)
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	t.Parallel()

	profile := domain.Track{
		Name:     "t",
		Phrases:  []string{"graph neural"},
		Keywords: []string{"gnn"},
	}

	s1, t1 := Score(profile, "Graph Neural Networks", "GNN models")
	s2, t2 := Score(profile, "Graph Neural Networks", "GNN models")
	if s1 != s2 || !reflect.DeepEqual(t1, t2) {
		t.Fatalf("re-running with identical inputs diverged: %v/%v vs %v/%v", s1, t1, s2, t2)
	}
}

func TestScoreNormalizesWhitespaceAndCase(t *testing.T) {
	t.Parallel()

	profile := domain.Track{Name: "t", Phrases: []string{"Tool  Use"}}

	score, terms := Score(profile, "TOOL   use matters", "")
	if score != 3 {
		t.Fatalf("expected phrase match after normalization, got %v", score)
	}
	if len(terms) != 1 || terms[0] != "tool use" {
		t.Fatalf("expected normalized term, got %v", terms)
	}
}

func TestAllowsCategories(t *testing.T) {
	t.Parallel()

	open := domain.Track{Name: "open"}
	if !open.AllowsCategories([]string{"cs.CL"}) {
		t.Fatal("empty category filter must admit everything")
	}

	filtered := domain.Track{Name: "f", Categories: []string{"cs.AI", "cs.LG"}}
	if !filtered.AllowsCategories([]string{"cs.LG", "stat.ML"}) {
		t.Fatal("overlapping categories must pass the filter")
	}
	if filtered.AllowsCategories([]string{"math.CO"}) {
		t.Fatal("disjoint categories must be rejected")
	}
}
