package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/infrastructure/storage"
	"PaperTracker/internal/ports"
	"PaperTracker/internal/testutil"
)

func TestMarkSentThenHasBeenSent(t *testing.T) {
	t.Parallel()

	db := testutil.TestDB(t)
	ctx := context.Background()

	sent, err := db.HasBeenSent(ctx, "2024-02-10")
	if err != nil {
		t.Fatal(err)
	}
	if sent {
		t.Fatal("fresh period must not be recorded")
	}

	items := []domain.DeliveryItem{
		{ExternalID: "2401.12345", PeriodKey: "2024-02-10", TrackName: "agents"},
	}
	if err := db.MarkSent(ctx, "2024-02-10", []byte(`{"total":1}`), items); err != nil {
		t.Fatal(err)
	}

	sent, err = db.HasBeenSent(ctx, "2024-02-10")
	if err != nil {
		t.Fatal(err)
	}
	if !sent {
		t.Fatal("period must be recorded after MarkSent")
	}
}

func TestMarkSentIsConditional(t *testing.T) {
	t.Parallel()

	db := testutil.TestDB(t)
	ctx := context.Background()

	if err := db.MarkSent(ctx, "2024-02-11", []byte("{}"), nil); err != nil {
		t.Fatal(err)
	}
	err := db.MarkSent(ctx, "2024-02-11", []byte("{}"), nil)
	if !errors.Is(err, ports.ErrAlreadySent) {
		t.Fatalf("second MarkSent must fail with ports.ErrAlreadySent, got %v", err)
	}
}

func TestFinalizeRunExactlyOnce(t *testing.T) {
	t.Parallel()

	db := testutil.TestDB(t)
	ctx := context.Background()

	run := domain.Run{
		ID:        "run-1",
		Kind:      domain.RunKindScan,
		StartedAt: time.Now().UTC(),
		Status:    domain.StatusRunning,
	}
	if err := db.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	stats := domain.RunStats{CategoriesScanned: 2}
	if err := db.FinalizeRun(ctx, run.ID, domain.StatusOK, time.Now().UTC(), stats); err != nil {
		t.Fatal(err)
	}

	err := db.FinalizeRun(ctx, run.ID, domain.StatusWarn, time.Now().UTC(), stats)
	if !errors.Is(err, storage.ErrRunFinalized) {
		t.Fatalf("second finalize must fail with ErrRunFinalized, got %v", err)
	}

	got, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusOK {
		t.Fatalf("status must stay ok, got %s", got.Status)
	}
	if got.Stats.CategoriesScanned != 2 {
		t.Fatalf("stats blob not persisted: %+v", got.Stats)
	}
}
