// Package testutil provides shared test helpers for databases and artifact trees.
package testutil

import (
	"os"
	"testing"
	"time"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/infrastructure/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *storage.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "papertracker-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := storage.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Paper returns a minimal valid paper for persistence tests.
func Paper(id string) domain.Paper {
	now := time.Date(2024, time.January, 20, 12, 0, 0, 0, time.UTC)
	return domain.Paper{
		ExternalID:  id,
		Revision:    "v1",
		Title:       "Title " + id,
		Abstract:    "Abstract " + id,
		Authors:     []string{"A. Author"},
		Categories:  []string{"cs.AI"},
		AbsURL:      "http://arxiv.org/abs/" + id,
		PDFURL:      "http://arxiv.org/pdf/" + id,
		PublishedAt: now,
		UpdatedAt:   now,
		IngestedAt:  now,
	}
}
