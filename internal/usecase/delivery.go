package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"PaperTracker/internal/digest"
	"PaperTracker/internal/domain"
	"PaperTracker/internal/observability"
	"PaperTracker/internal/ports"
	"PaperTracker/internal/run"
)

// DeliveryDeps wires the driven adapters into the digest workflow.
type DeliveryDeps struct {
	Selector *digest.Selector
	Ledger   ports.DeliveryLedger
	Notifier ports.Notifier
	Tracker  *run.Tracker
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// DeliveryConfig carries the digest parameters resolved from configuration.
type DeliveryConfig struct {
	MaxTotal     int
	MaxPerTrack  int
	DedupDays    int
	MinRelevance *float64
	Tracks       []domain.Track
}

// Delivery implements the digest workflow: select the period's papers, push
// them to the notifier, and record the delivery exactly once. Publication is
// at-least-once: when the notifier fails partway nothing is recorded and the
// whole period is re-sent on retry.
type Delivery struct {
	cfg      DeliveryConfig
	selector *digest.Selector
	ledger   ports.DeliveryLedger
	notifier ports.Notifier
	tracker  *run.Tracker
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewDelivery constructs the digest workflow component.
func NewDelivery(cfg DeliveryConfig, deps DeliveryDeps) *Delivery {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Delivery{
		cfg:      cfg,
		selector: deps.Selector,
		ledger:   deps.Ledger,
		notifier: deps.Notifier,
		tracker:  deps.Tracker,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// Run executes one digest delivery for the current period.
func (d *Delivery) Run(ctx context.Context) error {
	r, err := d.tracker.Begin(ctx, domain.RunKindDigest)
	if err != nil {
		return err
	}

	var stats domain.RunStats
	if err := d.deliver(ctx, &stats); err != nil {
		d.tracker.Fail(ctx, r, stats, err)
		d.metrics.RunFinished(string(domain.StatusError))
		return err
	}

	status, err := d.tracker.Finish(ctx, r, stats)
	if err != nil {
		return err
	}
	d.metrics.RunFinished(string(status))
	return nil
}

func (d *Delivery) deliver(ctx context.Context, stats *domain.RunStats) error {
	set, err := d.selector.Select(ctx, d.options())
	if err != nil {
		return err
	}

	sent, err := d.ledger.HasBeenSent(ctx, set.PeriodKey)
	if err != nil {
		return err
	}
	if sent {
		d.logger.Info("period already delivered", "period", set.PeriodKey)
		return nil
	}

	if set.Total == 0 {
		d.logger.Info("nothing to deliver", "period", set.PeriodKey)
		return nil
	}

	if err := d.publish(ctx, set); err != nil {
		return fmt.Errorf("publish digest %s: %w", set.PeriodKey, err)
	}

	payload, _ := json.Marshal(set)
	if err := d.ledger.MarkSent(ctx, set.PeriodKey, payload, deliveryItems(set)); err != nil {
		if errors.Is(err, ports.ErrAlreadySent) {
			// Lost the race to a concurrent delivery; its record stands.
			d.logger.Info("period recorded by another delivery", "period", set.PeriodKey)
			return nil
		}
		return err
	}

	d.metrics.DigestSent()
	d.logger.Info("digest delivered",
		"period", set.PeriodKey,
		"papers", set.Total,
		"tracks", len(set.Groups))
	return nil
}

func (d *Delivery) publish(ctx context.Context, set domain.Digest) error {
	if err := d.notifier.Publish(ctx, formatHeader(set)); err != nil {
		return err
	}
	for _, group := range set.Groups {
		if err := d.notifier.Publish(ctx, formatGroup(group)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Delivery) options() digest.Options {
	opts := digest.Options{
		MaxTotal:     d.cfg.MaxTotal,
		MaxPerTrack:  d.cfg.MaxPerTrack,
		DedupDays:    d.cfg.DedupDays,
		MinRelevance: d.cfg.MinRelevance,
		TrackCaps:    map[string]int{},
	}
	for _, t := range d.cfg.Tracks {
		if t.Disabled {
			continue
		}
		opts.Tracks = append(opts.Tracks, t.Name)
		if t.MaxPerDigest > 0 {
			opts.TrackCaps[t.Name] = t.MaxPerDigest
		}
	}
	return opts
}

func deliveryItems(set domain.Digest) []domain.DeliveryItem {
	var items []domain.DeliveryItem
	for _, group := range set.Groups {
		for _, paper := range group.Papers {
			items = append(items, domain.DeliveryItem{
				ExternalID: paper.ExternalID,
				PeriodKey:  set.PeriodKey,
				TrackName:  group.Track,
			})
		}
	}
	return items
}

func formatHeader(set domain.Digest) string {
	return fmt.Sprintf("Research digest %s: %d papers across %d tracks",
		set.PeriodKey, set.Total, len(set.Groups))
}

func formatGroup(group domain.DigestGroup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", group.Track)
	for i, paper := range group.Papers {
		fmt.Fprintf(&b, "%d. %s", i+1, paper.Title)
		if paper.Relevance != nil {
			fmt.Fprintf(&b, " [%.2f]", *paper.Relevance)
		}
		if paper.AbsURL != "" {
			fmt.Fprintf(&b, "\n   %s", paper.AbsURL)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
