package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/shiftline/shiftline-sync-server/internal/db"
	"github.com/shiftline/shiftline-sync-server/internal/notify"
)

// dbStore implements Store backed by SQLite
type dbStore struct {
	db *db.DB
}

// NewDBStore creates a SQLite-backed throttle store.
func NewDBStore(database *db.DB) Store {
	return &dbStore{db: database}
}

func (s *dbStore) Load(ctx context.Context) (map[notify.ThrottleKey]notify.ThrottleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, recipient_id, last_sent_at, sent_count_today, day_bucket
		FROM throttle_entries
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query throttle entries: %w", err)
	}
	defer rows.Close()

	result := make(map[notify.ThrottleKey]notify.ThrottleEntry)
	for rows.Next() {
		var (
			entry    notify.ThrottleEntry
			kind     string
			lastSent time.Time
		)
		if err := rows.Scan(&kind, &entry.RecipientID, &lastSent, &entry.SentCountToday, &entry.DayBucket); err != nil {
			return nil, fmt.Errorf("failed to scan throttle entry: %w", err)
		}
		entry.Kind = notify.Kind(kind)
		entry.LastSentAt = lastSent
		result[entry.Key()] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read throttle entries: %w", err)
	}

	return result, nil
}

// Save replaces the persisted entries in a single transaction, which gives
// the same all-or-nothing visibility as the file store's atomic rename.
func (s *dbStore) Save(ctx context.Context, entries map[notify.ThrottleKey]notify.ThrottleEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM throttle_entries`); err != nil {
		return fmt.Errorf("failed to clear throttle entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO throttle_entries (kind, recipient_id, last_sent_at, sent_count_today, day_bucket)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare throttle insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			string(e.Kind), e.RecipientID, e.LastSentAt, e.SentCountToday, e.DayBucket,
		); err != nil {
			return fmt.Errorf("failed to insert throttle entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit throttle entries: %w", err)
	}
	return nil
}
