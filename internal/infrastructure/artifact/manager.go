// Package artifact maintains the on-disk document tree: one directory per
// paper, partitioned by year/month, holding the PDF, extracted text, and a
// metadata blob.
package artifact

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/ports"
)

// ErrorKind classifies per-paper artifact failures.
type ErrorKind string

const (
	KindDownload   ErrorKind = "download"
	KindCorrupt    ErrorKind = "corrupt"
	KindExtraction ErrorKind = "extraction"
)

// Error is a per-paper artifact failure; the pipeline catches and counts it.
type Error struct {
	Kind       ErrorKind
	ExternalID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("artifact %s for %s: %v", e.Kind, e.ExternalID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var pdfMagic = []byte("%PDF-")

// Manager downloads primary documents, validates them against the PDF magic
// signature, repairs corrupted files, and extracts text.
type Manager struct {
	root        string
	fetcher     ports.Fetcher
	extractText bool
	logger      *slog.Logger
}

var _ ports.ArtifactManager = (*Manager)(nil)

// NewManager creates the artifact root if needed.
func NewManager(root string, fetcher ports.Fetcher, extractText bool, logger *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{root: root, fetcher: fetcher, extractText: extractText, logger: logger}, nil
}

// paperDir partitions papers by the YYMM prefix of their external ID.
func (m *Manager) paperDir(externalID string) string {
	partition := externalID
	if i := strings.Index(externalID, "."); i > 0 {
		partition = externalID[:i]
	}
	return filepath.Join(m.root, partition, externalID)
}

type metadataBlob struct {
	ExternalID string   `json:"external_id"`
	Revision   string   `json:"revision"`
	Title      string   `json:"title"`
	Abstract   string   `json:"abstract"`
	Authors    []string `json:"authors"`
	Categories []string `json:"categories"`
	AbsURL     string   `json:"abs_url"`
	PDFURL     string   `json:"pdf_url"`
	IngestedAt string   `json:"ingested_at"`
}

// WriteMetadata writes the paper's metadata blob and returns its path.
func (m *Manager) WriteMetadata(paper domain.Paper) (string, error) {
	dir := m.paperDir(paper.ExternalID)
	metaPath := filepath.Join(dir, paper.ExternalID+".json")

	ingested := paper.IngestedAt
	if ingested.IsZero() {
		ingested = time.Now().UTC()
	}
	blob, err := json.MarshalIndent(metadataBlob{
		ExternalID: paper.ExternalID,
		Revision:   paper.Revision,
		Title:      paper.Title,
		Abstract:   paper.Abstract,
		Authors:    paper.Authors,
		Categories: paper.Categories,
		AbsURL:     paper.AbsURL,
		PDFURL:     paper.PDFURL,
		IngestedAt: ingested.Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata %s: %w", paper.ExternalID, err)
	}
	if err := writeAtomic(metaPath, blob); err != nil {
		return "", fmt.Errorf("write metadata %s: %w", paper.ExternalID, err)
	}
	return metaPath, nil
}

// Ensure makes the primary document and extracted text exist and be valid
// for one candidate. An existing document is never trusted: its magic
// signature is re-checked, and a mismatch triggers exactly one forced
// redownload that replaces the artifact.
func (m *Manager) Ensure(ctx context.Context, cand domain.ArtifactCandidate) (domain.ArtifactResult, error) {
	dir := m.paperDir(cand.ExternalID)
	docPath := filepath.Join(dir, cand.ExternalID+".pdf")
	res := domain.ArtifactResult{DocPath: docPath, TextPath: cand.TextPath, DocHash: cand.DocHash}

	if _, err := os.Stat(docPath); err != nil {
		if err := m.download(ctx, cand, docPath, &res); err != nil {
			return res, err
		}
	}

	valid, diagnostic, err := checkMagic(docPath)
	if err != nil {
		return res, &Error{Kind: KindCorrupt, ExternalID: cand.ExternalID, Err: err}
	}
	if !valid {
		res.Repaired = true
		m.logger.Warn("corrupt document, forcing redownload",
			"paper", cand.ExternalID, "diagnostic", diagnostic)
		if err := m.download(ctx, cand, docPath, &res); err != nil {
			return res, err
		}
		valid, diagnostic, err = checkMagic(docPath)
		if err != nil {
			return res, &Error{Kind: KindCorrupt, ExternalID: cand.ExternalID, Err: err}
		}
		if !valid {
			return res, &Error{
				Kind:       KindCorrupt,
				ExternalID: cand.ExternalID,
				Err:        fmt.Errorf("still fails signature check after redownload: %s", diagnostic),
			}
		}
	}

	if !m.extractText {
		m.logger.Warn("text extraction unavailable, skipping", "paper", cand.ExternalID)
		return res, nil
	}

	textPath := filepath.Join(dir, cand.ExternalID+".txt")
	if _, err := os.Stat(textPath); err != nil {
		text, err := extractPlainText(docPath)
		if err != nil {
			return res, &Error{Kind: KindExtraction, ExternalID: cand.ExternalID, Err: err}
		}
		if err := writeAtomic(textPath, []byte(text)); err != nil {
			return res, &Error{Kind: KindExtraction, ExternalID: cand.ExternalID, Err: err}
		}
		res.Extracted = true
	}
	res.TextPath = textPath

	return res, nil
}

func (m *Manager) download(ctx context.Context, cand domain.ArtifactCandidate, docPath string, res *domain.ArtifactResult) error {
	if cand.PDFURL == "" {
		return &Error{Kind: KindDownload, ExternalID: cand.ExternalID, Err: fmt.Errorf("no document url recorded")}
	}

	data, err := m.fetcher.Get(ctx, cand.PDFURL, nil)
	if err != nil {
		return &Error{Kind: KindDownload, ExternalID: cand.ExternalID, Err: err}
	}
	if err := writeAtomic(docPath, data); err != nil {
		return &Error{Kind: KindDownload, ExternalID: cand.ExternalID, Err: err}
	}

	sum := sha256.Sum256(data)
	res.DocHash = hex.EncodeToString(sum[:])
	res.Bytes = int64(len(data))
	res.Downloaded = true

	m.logger.Debug("document downloaded",
		"paper", cand.ExternalID, "bytes", res.Bytes, "hash", res.DocHash)
	return nil
}

// checkMagic verifies the PDF signature. For a mismatch it returns a short
// diagnostic, including the page title when the file is an HTML error page
// saved with the document's extension.
func checkMagic(path string) (bool, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, "", fmt.Errorf("read document: %w", err)
	}
	if bytes.HasPrefix(data, pdfMagic) {
		return true, "", nil
	}

	head := strings.ToLower(string(data[:min(len(data), 512)]))
	if strings.Contains(head, "<html") || strings.Contains(head, "<!doctype") {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data)); err == nil {
			if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
				return false, fmt.Sprintf("html page %q", title), nil
			}
		}
		return false, "html page", nil
	}
	return false, "unknown signature", nil
}

// writeAtomic writes content via tmp file then rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".papertracker-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
