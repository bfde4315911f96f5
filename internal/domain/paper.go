package domain

import "time"

// NormalizedEntry is one feed entry after normalization, before persistence.
type NormalizedEntry struct {
	ExternalID  string
	Revision    string
	Title       string
	Summary     string
	Authors     []string
	Categories  []string
	AbsURL      string
	PDFURL      string
	PublishedAt time.Time
	UpdatedAt   time.Time
}

// Paper is the core entity, keyed by the stable external identifier.
// Re-ingestion updates mutable fields in place; identity is never duplicated.
type Paper struct {
	ExternalID  string
	Revision    string
	Title       string
	Abstract    string
	Authors     []string
	Categories  []string
	AbsURL      string
	PDFURL      string
	PublishedAt time.Time
	UpdatedAt   time.Time
	DocPath     string
	TextPath    string
	MetaPath    string
	DocHash     string
	Relevance   *float64
	IngestedAt  time.Time
}

// TrackMatch records that a paper scored at or above a track's threshold.
// At most one row exists per (paper, track); re-matching overwrites it.
type TrackMatch struct {
	ExternalID   string
	TrackName    string
	Score        float64
	MatchedTerms []string
	MatchedAt    time.Time
}

// ArtifactCandidate is a matched paper whose artifact set is incomplete.
type ArtifactCandidate struct {
	ExternalID string
	Revision   string
	PDFURL     string
	DocPath    string
	TextPath   string
	DocHash    string
}

// ArtifactResult reports what the artifact step did for one paper.
type ArtifactResult struct {
	DocPath    string
	TextPath   string
	DocHash    string
	Bytes      int64
	Downloaded bool
	Repaired   bool
	Extracted  bool
}

// DeliveryItem maps one delivered paper to its period and track.
type DeliveryItem struct {
	ExternalID string
	PeriodKey  string
	TrackName  string
}

// DigestCandidate is one (paper, track) pair eligible for delivery.
type DigestCandidate struct {
	ExternalID   string
	Title        string
	Abstract     string
	AbsURL       string
	Relevance    *float64
	TrackName    string
	MatchScore   float64
	MatchedTerms []string
	MatchedAt    time.Time
}

// DigestGroup holds the selected papers for one track.
type DigestGroup struct {
	Track  string
	Papers []DigestCandidate
}

// Digest is the bounded, deduplicated delivery set for one period.
type Digest struct {
	PeriodKey string
	Groups    []DigestGroup
	Total     int
}
