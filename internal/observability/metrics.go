// Package observability exposes pipeline counters over a Prometheus registry.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the pipeline counters. A nil *Metrics is valid and
// turns every recording call into a no-op, so callers never guard.
type Metrics struct {
	registry *prometheus.Registry

	papersIngested  prometheus.Counter
	matchesRecorded *prometheus.CounterVec
	fetchFailures   *prometheus.CounterVec
	docsDownloaded  prometheus.Counter
	corruptRepaired prometheus.Counter
	textsExtracted  prometheus.Counter
	digestsSent     prometheus.Counter
	runsFinished    *prometheus.CounterVec
}

// New builds a Metrics instance backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	papersIngested := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "papertracker",
		Name:      "papers_ingested_total",
		Help:      "Papers created or refreshed from the feed.",
	})
	matchesRecorded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "papertracker",
		Name:      "track_matches_total",
		Help:      "Track matches recorded, by track.",
	}, []string{"track"})
	fetchFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "papertracker",
		Name:      "fetch_failures_total",
		Help:      "Failed upstream fetches, by stage.",
	}, []string{"stage"})
	docsDownloaded := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "papertracker",
		Name:      "documents_downloaded_total",
		Help:      "Documents fetched to local storage.",
	})
	corruptRepaired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "papertracker",
		Name:      "corrupt_documents_total",
		Help:      "Stored documents that failed the integrity check.",
	})
	textsExtracted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "papertracker",
		Name:      "texts_extracted_total",
		Help:      "Plain-text extractions completed.",
	})
	digestsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "papertracker",
		Name:      "digests_sent_total",
		Help:      "Digest deliveries recorded in the ledger.",
	})
	runsFinished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "papertracker",
		Name:      "runs_finished_total",
		Help:      "Finalized runs, by terminal status.",
	}, []string{"status"})

	registry.MustRegister(
		papersIngested,
		matchesRecorded,
		fetchFailures,
		docsDownloaded,
		corruptRepaired,
		textsExtracted,
		digestsSent,
		runsFinished,
	)

	return &Metrics{
		registry:        registry,
		papersIngested:  papersIngested,
		matchesRecorded: matchesRecorded,
		fetchFailures:   fetchFailures,
		docsDownloaded:  docsDownloaded,
		corruptRepaired: corruptRepaired,
		textsExtracted:  textsExtracted,
		digestsSent:     digestsSent,
		runsFinished:    runsFinished,
	}
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PaperIngested() {
	if m != nil {
		m.papersIngested.Inc()
	}
}

func (m *Metrics) MatchRecorded(track string) {
	if m != nil {
		m.matchesRecorded.WithLabelValues(track).Inc()
	}
}

func (m *Metrics) FetchFailed(stage string) {
	if m != nil {
		m.fetchFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) DocumentDownloaded() {
	if m != nil {
		m.docsDownloaded.Inc()
	}
}

func (m *Metrics) CorruptDocument() {
	if m != nil {
		m.corruptRepaired.Inc()
	}
}

func (m *Metrics) TextExtracted() {
	if m != nil {
		m.textsExtracted.Inc()
	}
}

func (m *Metrics) DigestSent() {
	if m != nil {
		m.digestsSent.Inc()
	}
}

func (m *Metrics) RunFinished(status string) {
	if m != nil {
		m.runsFinished.WithLabelValues(status).Inc()
	}
}
