package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/ports"
)

var _ ports.DeliveryLedger = (*DB)(nil)

// HasBeenSent reports whether a delivery record exists for the period.
func (db *DB) HasBeenSent(ctx context.Context, periodKey string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM delivery_records WHERE period_key = ?`, periodKey).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("storage: has been sent %s: %w", periodKey, err)
}

// MarkSent records a fully delivered period. The period row is a conditional
// insert, so two overlapping runs cannot both claim the same period: the
// loser gets ports.ErrAlreadySent and must not re-send. The join rows for
// dedup lookups are written in the same transaction.
func (db *DB) MarkSent(ctx context.Context, periodKey string, payload []byte, items []domain.DeliveryItem) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin mark sent: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx, `
		INSERT INTO delivery_records (period_key, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(period_key) DO NOTHING
	`, periodKey, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: insert delivery record %s: %w", periodKey, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: delivery record rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("storage: mark sent %s: %w", periodKey, ports.ErrAlreadySent)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO delivery_items (external_id, period_key, track_name) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare delivery item insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, item.ExternalID, periodKey, item.TrackName); err != nil {
			return fmt.Errorf("storage: insert delivery item %s: %w", item.ExternalID, err)
		}
	}

	return tx.Commit()
}
