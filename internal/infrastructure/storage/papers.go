package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/ports"
)

var _ ports.PaperRepository = (*DB)(nil)
var _ ports.DigestSource = (*DB)(nil)

// UpsertPaper creates-or-updates a paper by external ID. Mutable metadata is
// refreshed in place; artifact columns and ingested_at are left untouched on
// conflict.
func (db *DB) UpsertPaper(ctx context.Context, paper domain.Paper) error {
	authors, _ := json.Marshal(paper.Authors)
	categories, _ := json.Marshal(paper.Categories)

	ingestedAt := paper.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO papers (external_id, revision, title, abstract, authors, categories,
		                    abs_url, pdf_url, published_at, updated_at, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			revision     = excluded.revision,
			title        = excluded.title,
			abstract     = excluded.abstract,
			authors      = excluded.authors,
			categories   = excluded.categories,
			abs_url      = excluded.abs_url,
			pdf_url      = excluded.pdf_url,
			published_at = excluded.published_at,
			updated_at   = excluded.updated_at
	`, paper.ExternalID, paper.Revision, paper.Title, paper.Abstract,
		string(authors), string(categories), paper.AbsURL, paper.PDFURL,
		paper.PublishedAt, paper.UpdatedAt, ingestedAt)
	if err != nil {
		return fmt.Errorf("storage: upsert paper %s: %w", paper.ExternalID, err)
	}
	return nil
}

// UpsertMatch creates-or-updates the match row for (paper, track).
func (db *DB) UpsertMatch(ctx context.Context, match domain.TrackMatch) error {
	terms, _ := json.Marshal(match.MatchedTerms)

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO track_matches (external_id, track_name, score, matched_terms, matched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(external_id, track_name) DO UPDATE SET
			score         = excluded.score,
			matched_terms = excluded.matched_terms,
			matched_at    = excluded.matched_at
	`, match.ExternalID, match.TrackName, match.Score, string(terms), match.MatchedAt)
	if err != nil {
		return fmt.Errorf("storage: upsert match %s/%s: %w", match.ExternalID, match.TrackName, err)
	}
	return nil
}

// SetRelevance stores the external model's score for a paper.
func (db *DB) SetRelevance(ctx context.Context, externalID string, score float64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE papers SET relevance = ? WHERE external_id = ?`, score, externalID)
	if err != nil {
		return fmt.Errorf("storage: set relevance %s: %w", externalID, err)
	}
	return nil
}

// UpdateArtifact records the artifact paths and document hash for a paper.
// Empty arguments leave the stored value untouched, so the ingest stage can
// record the metadata path without clobbering what the artifact stage wrote.
func (db *DB) UpdateArtifact(ctx context.Context, externalID, docPath, textPath, metaPath, docHash string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE papers
		SET doc_path  = COALESCE(NULLIF(?, ''), doc_path),
		    text_path = COALESCE(NULLIF(?, ''), text_path),
		    meta_path = COALESCE(NULLIF(?, ''), meta_path),
		    doc_hash  = COALESCE(NULLIF(?, ''), doc_hash)
		WHERE external_id = ?
	`, docPath, textPath, metaPath, docHash, externalID)
	if err != nil {
		return fmt.Errorf("storage: update artifact %s: %w", externalID, err)
	}
	return nil
}

// GetPaper loads one paper by external ID.
func (db *DB) GetPaper(ctx context.Context, externalID string) (domain.Paper, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT external_id, revision, title, abstract, authors, categories,
		       abs_url, pdf_url, published_at, updated_at,
		       doc_path, text_path, meta_path, doc_hash, relevance, ingested_at
		FROM papers WHERE external_id = ?
	`, externalID)

	var p domain.Paper
	var authors, categories string
	var published, updated sql.NullTime
	var relevance sql.NullFloat64
	err := row.Scan(&p.ExternalID, &p.Revision, &p.Title, &p.Abstract,
		&authors, &categories, &p.AbsURL, &p.PDFURL, &published, &updated,
		&p.DocPath, &p.TextPath, &p.MetaPath, &p.DocHash, &relevance, &p.IngestedAt)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("storage: get paper %s: %w", externalID, err)
	}

	_ = json.Unmarshal([]byte(authors), &p.Authors)
	_ = json.Unmarshal([]byte(categories), &p.Categories)
	if published.Valid {
		p.PublishedAt = published.Time
	}
	if updated.Valid {
		p.UpdatedAt = updated.Time
	}
	if relevance.Valid {
		v := relevance.Float64
		p.Relevance = &v
	}
	return p, nil
}

// CountPapers returns the number of paper rows; used by run summaries.
func (db *DB) CountPapers(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count papers: %w", err)
	}
	return n, nil
}

// ListMatchedMissingArtifacts returns matched papers whose artifact set is
// incomplete, newest first. The ordering clause makes artifact retrieval
// deterministic across runs.
func (db *DB) ListMatchedMissingArtifacts(ctx context.Context, limit int) ([]domain.ArtifactCandidate, error) {
	query, args, err := sq.Select("p.external_id", "p.revision", "p.pdf_url",
		"p.doc_path", "p.text_path", "p.doc_hash").
		From("papers AS p").
		Where("EXISTS (SELECT 1 FROM track_matches AS m WHERE m.external_id = p.external_id)").
		Where(sq.Or{sq.Eq{"p.doc_path": ""}, sq.Eq{"p.text_path": ""}}).
		OrderBy("p.updated_at DESC", "p.external_id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("storage: build candidate query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list artifact candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.ArtifactCandidate
	for rows.Next() {
		var c domain.ArtifactCandidate
		if err := rows.Scan(&c.ExternalID, &c.Revision, &c.PDFURL, &c.DocPath, &c.TextPath, &c.DocHash); err != nil {
			return nil, fmt.Errorf("storage: scan artifact candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate artifact candidates: %w", err)
	}
	return out, nil
}

// ListDigestCandidates returns every (paper, track) pair eligible for
// delivery under the given filters. Ranking and capping happen in the
// digest selector; the rows come back in a stable but unranked order.
func (db *DB) ListDigestCandidates(ctx context.Context, q ports.DigestQuery) ([]domain.DigestCandidate, error) {
	builder := sq.Select("p.external_id", "p.title", "p.abstract", "p.abs_url", "p.relevance",
		"m.track_name", "m.score", "m.matched_terms", "m.matched_at").
		From("papers AS p").
		Join("track_matches AS m ON m.external_id = p.external_id").
		OrderBy("p.external_id ASC", "m.track_name ASC")

	if len(q.Tracks) > 0 {
		builder = builder.Where(sq.Eq{"m.track_name": q.Tracks})
	}
	if q.MinRelevance != nil {
		// Papers without an external relevance score pass the filter.
		builder = builder.Where(sq.Or{
			sq.Expr("p.relevance IS NULL"),
			sq.GtOrEq{"p.relevance": *q.MinRelevance},
		})
	}
	if q.DedupCutoff != "" {
		builder = builder.Where(
			"NOT EXISTS (SELECT 1 FROM delivery_items AS d WHERE d.external_id = p.external_id AND d.period_key >= ?)",
			q.DedupCutoff)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("storage: build digest query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list digest candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.DigestCandidate
	for rows.Next() {
		var c domain.DigestCandidate
		var relevance sql.NullFloat64
		var terms string
		if err := rows.Scan(&c.ExternalID, &c.Title, &c.Abstract, &c.AbsURL, &relevance,
			&c.TrackName, &c.MatchScore, &terms, &c.MatchedAt); err != nil {
			return nil, fmt.Errorf("storage: scan digest candidate: %w", err)
		}
		if relevance.Valid {
			v := relevance.Float64
			c.Relevance = &v
		}
		_ = json.Unmarshal([]byte(terms), &c.MatchedTerms)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate digest candidates: %w", err)
	}
	return out, nil
}
