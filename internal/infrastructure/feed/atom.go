// Package feed normalizes the arXiv Atom API payload into typed entries.
package feed

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"PaperTracker/internal/domain"
)

// idExpr extracts the external ID and optional revision tag from an
// identifier URL such as http://arxiv.org/abs/2401.12345v2.
var idExpr = regexp.MustCompile(`(\d{4}\.\d{5,7})(v\d+)?$`)

const defaultRevision = "v1"

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Updated    string         `xml:"updated"`
	Published  string         `xml:"published"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Links      []atomLink     `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

// Query builds the arXiv API parameters for one category page.
func Query(category string, maxResults int) url.Values {
	q := url.Values{}
	q.Set("search_query", "cat:"+category)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")
	return q
}

// Parse decodes one raw feed payload. Malformed individual entries are
// skipped; only an undecodable payload fails the batch.
func Parse(raw []byte) ([]domain.NormalizedEntry, error) {
	var feed atomFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	entries := make([]domain.NormalizedEntry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		entry, err := normalizeEntry(e)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func normalizeEntry(e atomEntry) (domain.NormalizedEntry, error) {
	match := idExpr.FindStringSubmatch(strings.TrimSpace(e.ID))
	if match == nil {
		return domain.NormalizedEntry{}, fmt.Errorf("unrecognized identifier %q", e.ID)
	}
	externalID := match[1]
	revision := match[2]
	if revision == "" {
		revision = defaultRevision
	}

	title := collapseSpace(e.Title)
	if title == "" {
		return domain.NormalizedEntry{}, fmt.Errorf("entry %s has no title", externalID)
	}

	published := parseTime(e.Published)
	updated := parseTime(e.Updated)
	if published.IsZero() && updated.IsZero() {
		return domain.NormalizedEntry{}, fmt.Errorf("entry %s has no usable timestamp", externalID)
	}

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if name := collapseSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	categories := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		if term := strings.TrimSpace(c.Term); term != "" {
			categories = append(categories, term)
		}
	}

	var absURL, pdfURL string
	for _, link := range e.Links {
		switch {
		case link.Rel == "alternate":
			absURL = link.Href
		case link.Title == "pdf":
			pdfURL = link.Href
		}
	}

	return domain.NormalizedEntry{
		ExternalID:  externalID,
		Revision:    revision,
		Title:       title,
		Summary:     collapseSpace(e.Summary),
		Authors:     authors,
		Categories:  categories,
		AbsURL:      absURL,
		PDFURL:      pdfURL,
		PublishedAt: published,
		UpdatedAt:   updated,
	}, nil
}

// WithinWindow reports whether the entry was updated (or, lacking an update
// timestamp, published) within the trailing window ending at now.
func WithinWindow(entry domain.NormalizedEntry, days int, now time.Time) bool {
	effective := entry.UpdatedAt
	if effective.IsZero() {
		effective = entry.PublishedAt
	}
	cutoff := now.AddDate(0, 0, -days)
	return !effective.Before(cutoff)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
