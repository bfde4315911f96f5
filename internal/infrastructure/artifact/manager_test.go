package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/testutil"
)

type fakeFetcher struct {
	payload []byte
	err     error
	calls   int32
}

func (f *fakeFetcher) Get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func (f *fakeFetcher) Pause(ctx context.Context) error { return nil }

func candidate() domain.ArtifactCandidate {
	return domain.ArtifactCandidate{
		ExternalID: "2401.12345",
		Revision:   "v1",
		PDFURL:     "http://arxiv.org/pdf/2401.12345",
	}
}

func TestEnsureDownloadsMissingDocument(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{payload: []byte("%PDF-1.5 fake body")}
	mgr, err := NewManager(t.TempDir(), fetcher, false, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := mgr.Ensure(context.Background(), candidate())
	if err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if !res.Downloaded || res.Repaired {
		t.Fatalf("expected plain download, got %+v", res)
	}
	if res.DocHash == "" || res.Bytes == 0 {
		t.Fatalf("hash and byte count must be recorded: %+v", res)
	}
	if _, err := os.Stat(res.DocPath); err != nil {
		t.Fatalf("document not on disk: %v", err)
	}
	if filepath.Base(filepath.Dir(filepath.Dir(res.DocPath))) != "2401" {
		t.Fatalf("document not partitioned by YYMM: %s", res.DocPath)
	}
}

func TestEnsureRepairsCorruptDocument(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{payload: []byte("%PDF-1.5 replacement")}
	root := t.TempDir()
	mgr, err := NewManager(root, fetcher, false, nil)
	if err != nil {
		t.Fatal(err)
	}

	cand := candidate()
	docPath := filepath.Join(root, "2401", cand.ExternalID, cand.ExternalID+".pdf")
	if err := os.MkdirAll(filepath.Dir(docPath), 0o755); err != nil {
		t.Fatal(err)
	}
	corrupt := []byte("<html><head><title>429 Too Many Requests</title></head></html>")
	if err := os.WriteFile(docPath, corrupt, 0o644); err != nil {
		t.Fatal(err)
	}
	cand.DocPath = docPath
	cand.DocHash = "stale"

	res, err := mgr.Ensure(context.Background(), cand)
	if err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if !res.Repaired {
		t.Fatal("corruption must be flagged")
	}
	if !res.Downloaded {
		t.Fatal("repair must redownload")
	}
	if got := atomic.LoadInt32(&fetcher.calls); got != 1 {
		t.Fatalf("expected exactly one redownload, got %d", got)
	}
	if res.DocHash == "stale" || res.DocHash == "" {
		t.Fatalf("stored hash must be updated after repair, got %q", res.DocHash)
	}

	data, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.5 replacement" {
		t.Fatalf("artifact not replaced: %q", data)
	}
}

func TestEnsureGivesUpAfterOneRedownload(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{payload: []byte("<html><title>error</title></html>")}
	root := t.TempDir()
	mgr, err := NewManager(root, fetcher, false, nil)
	if err != nil {
		t.Fatal(err)
	}

	cand := candidate()
	docPath := filepath.Join(root, "2401", cand.ExternalID, cand.ExternalID+".pdf")
	if err := os.MkdirAll(filepath.Dir(docPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(docPath, []byte("<html>still bad</html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = mgr.Ensure(context.Background(), cand)
	if err == nil {
		t.Fatal("expected corruption error")
	}
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != KindCorrupt {
		t.Fatalf("expected corrupt artifact error, got %v", err)
	}
	if got := atomic.LoadInt32(&fetcher.calls); got != 1 {
		t.Fatalf("redownload must happen exactly once, got %d", got)
	}
}

func TestEnsureDownloadFailureIsTyped(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: errors.New("boom")}
	mgr, err := NewManager(t.TempDir(), fetcher, false, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = mgr.Ensure(context.Background(), candidate())
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != KindDownload {
		t.Fatalf("expected download error, got %v", err)
	}
}

func TestEnsureSkipsExtractionWhenUnavailable(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{payload: []byte("%PDF-1.5 body")}
	mgr, err := NewManager(t.TempDir(), fetcher, false, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := mgr.Ensure(context.Background(), candidate())
	if err != nil {
		t.Fatalf("extraction being unavailable must not fail the paper: %v", err)
	}
	if res.Extracted {
		t.Fatal("no extraction expected")
	}
	if res.TextPath != "" {
		if _, statErr := os.Stat(res.TextPath); statErr == nil {
			t.Fatal("no text file expected when extraction is unavailable")
		}
	}
}

func TestWriteMetadata(t *testing.T) {
	t.Parallel()

	mgr, err := NewManager(t.TempDir(), &fakeFetcher{}, false, nil)
	if err != nil {
		t.Fatal(err)
	}

	paper := testutil.Paper("2401.54321")
	metaPath, err := mgr.WriteMetadata(paper)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatal(err)
	}
	var blob map[string]any
	if err := json.Unmarshal(data, &blob); err != nil {
		t.Fatalf("metadata blob not valid JSON: %v", err)
	}
	if blob["title"] != paper.Title {
		t.Fatalf("unexpected metadata title: %v", blob["title"])
	}
}
