package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/shiftline/shiftline-sync-server/internal/db"
	"github.com/shiftline/shiftline-sync-server/internal/notify"
)

// dbQueue implements Queue backed by SQLite. The delivery agent updates the
// acknowledged column through the same database, so every statement is a
// single atomic unit with respect to it.
type dbQueue struct {
	db *db.DB
}

// NewDBQueue creates a SQLite-backed queue.
func NewDBQueue(database *db.DB) Queue {
	return &dbQueue{db: database}
}

func (q *dbQueue) List(ctx context.Context) ([]notify.QueueItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT item_key, id, recipient_id, contact_address, message, kind, priority, acknowledged, enqueued_at
		FROM queue_items
		ORDER BY
			CASE priority WHEN 'High' THEN 0 WHEN 'Medium' THEN 1 WHEN 'Low' THEN 2 ELSE 3 END,
			enqueued_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}
	defer rows.Close()

	var items []notify.QueueItem
	for rows.Next() {
		var (
			item       notify.QueueItem
			kind       string
			priority   string
			ack        int
			enqueuedAt time.Time
		)
		if err := rows.Scan(
			&item.ItemKey, &item.ID, &item.RecipientID, &item.ContactAddress,
			&item.Message, &kind, &priority, &ack, &enqueuedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		item.Kind = notify.Kind(kind)
		item.Priority = notify.Priority(priority)
		item.Acknowledged = ack != 0
		item.EnqueuedAt = enqueuedAt
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queue items: %w", err)
	}

	return items, nil
}

func (q *dbQueue) Append(ctx context.Context, item notify.QueueItem) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO queue_items (item_key, id, recipient_id, contact_address, message, kind, priority, acknowledged, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`,
		item.ItemKey, item.ID, item.RecipientID, item.ContactAddress,
		item.Message, string(item.Kind), string(item.Priority), item.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert queue item %s: %w", item.ItemKey, err)
	}
	return nil
}

func (q *dbQueue) RemoveAcknowledged(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM queue_items WHERE acknowledged != 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to remove acknowledged queue items: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed queue items: %w", err)
	}
	return int(removed), nil
}

func (q *dbQueue) Acknowledge(ctx context.Context, itemKey string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE queue_items SET acknowledged = 1 WHERE item_key = ?`, itemKey)
	if err != nil {
		return fmt.Errorf("failed to acknowledge queue item %s: %w", itemKey, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to acknowledge queue item %s: %w", itemKey, err)
	}
	if affected == 0 {
		return fmt.Errorf("queue item with key %s not found", itemKey)
	}
	return nil
}
