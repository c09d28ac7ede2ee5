// Package engine implements the notification queue refresh: reconciliation
// of delivered items followed by throttle-gated admission of new records.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shiftline/shiftline-sync-server/internal/notify"
	"github.com/shiftline/shiftline-sync-server/internal/notify/queue"
	"github.com/shiftline/shiftline-sync-server/internal/notify/source"
	"github.com/shiftline/shiftline-sync-server/internal/notify/tracking"
	"github.com/shiftline/shiftline-sync-server/pkg/logger"
)

// Result summarizes one refresh cycle.
type Result struct {
	// Reclaimed is the number of acknowledged items removed from the queue
	Reclaimed int

	// Admitted is the number of records promoted into the queue
	Admitted int

	// Skipped is the number of records rejected by throttle admission or
	// already present in the queue
	Skipped int

	// Pending is the queue depth after the refresh
	Pending int
}

// Refresher refreshes the pending queue. It is the engine's consumer-facing
// contract; the sync service drives it once per tick.
//
//go:generate mockgen -destination=mocks/mock_refresher.go -package=mocks github.com/shiftline/shiftline-sync-server/internal/notify/engine Refresher
type Refresher interface {
	// Refresh reconciles acknowledged deliveries and admits new records.
	// Safe to call on every tick: with no new records and no acknowledgments
	// it leaves the queue unchanged.
	Refresh(ctx context.Context) (*Result, error)
}

// Engine is the default Refresher implementation.
type Engine struct {
	source   source.Source
	store    tracking.Store
	queue    queue.Queue
	policies notify.PolicyTable

	// now is swappable for tests
	now func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates a queue engine over the given source, throttle store and queue.
func New(
	src source.Source,
	store tracking.Store,
	q queue.Queue,
	policies notify.PolicyTable,
	opts ...Option,
) *Engine {
	e := &Engine{
		source:   src,
		store:    store,
		queue:    q,
		policies: policies,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Refresh runs one reconcile-then-admit cycle.
func (e *Engine) Refresh(ctx context.Context) (*Result, error) {
	result := &Result{}

	// A failed load degrades to a cold start rather than aborting the
	// refresh; the itemKey guard below still prevents duplicate enqueues.
	entries, err := e.store.Load(ctx)
	if err != nil {
		logger.Warnf("Failed to load throttle state, continuing with empty state: %v", err)
		entries = make(map[notify.ThrottleKey]notify.ThrottleEntry)
	}

	// Snapshot the queue before reconciliation so acknowledged items are
	// still visible. Every queued item is a send, so a throttle entry behind
	// an item's enqueue time means a previous save was lost; repairing the
	// entry here turns that failed save into a retry on this cycle.
	queued, err := e.queue.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	dirty := false
	liveKeys := make(map[string]struct{}, len(queued))
	for _, item := range queued {
		if !item.Acknowledged {
			liveKeys[item.ItemKey] = struct{}{}
		}

		key := notify.ThrottleKey{Kind: item.Kind, RecipientID: item.RecipientID}
		var entry *notify.ThrottleEntry
		if existing, ok := entries[key]; ok {
			entry = &existing
		}
		if entry == nil || entry.LastSentAt.Before(item.EnqueuedAt) {
			sent := notify.Record{Kind: item.Kind, RecipientID: item.RecipientID}
			entries[key] = notify.RecordSend(entry, sent, item.EnqueuedAt)
			dirty = true
		}
	}

	// Reconciliation runs before admission so that a record re-produced
	// upstream after its previous item was delivered is admitted by the pass
	// below (subject to throttling), not blocked by a stale queue entry.
	reclaimed, err := e.queue.RemoveAcknowledged(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile acknowledged items: %w", err)
	}
	result.Reclaimed = reclaimed
	if reclaimed > 0 {
		logger.Infof("Reclaimed %d delivered notifications from queue", reclaimed)
	}

	records, err := e.source.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read notification records: %w", err)
	}

	now := e.now()
	for _, rec := range records {
		key := notify.ThrottleKey{Kind: rec.Kind, RecipientID: rec.RecipientID}
		var entry *notify.ThrottleEntry
		if existing, ok := entries[key]; ok {
			entry = &existing
		}

		if !e.policies.Admissible(rec, entry, now) {
			result.Skipped++
			continue
		}

		itemKey := rec.ItemKey()
		if _, exists := liveKeys[itemKey]; exists {
			// Already enqueued; guards against double-enqueue if a cycle is
			// re-entered after a crash mid-reconciliation.
			result.Skipped++
			continue
		}

		item := notify.QueueItem{
			ID:             uuid.NewString(),
			ItemKey:        itemKey,
			RecipientID:    rec.RecipientID,
			ContactAddress: rec.ContactAddress,
			Message:        rec.Message,
			Kind:           rec.Kind,
			Priority:       rec.Priority,
			EnqueuedAt:     now,
		}
		if err := e.queue.Append(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to enqueue notification for %s: %w", rec.RecipientID, err)
		}

		entries[key] = notify.RecordSend(entry, rec, now)
		liveKeys[itemKey] = struct{}{}
		result.Admitted++
		dirty = true
	}

	// Pending is this cycle's view of the queue; an acknowledgment landing
	// mid-refresh is reclaimed (and the depth corrected) on the next cycle.
	result.Pending = len(liveKeys)

	if dirty {
		if err := e.store.Save(ctx, entries); err != nil {
			// The enqueues above already happened; surface the save failure
			// so the tick records it. The next refresh retries the save and
			// the itemKey guard keeps the queue duplicate-free meanwhile.
			return result, fmt.Errorf("failed to persist throttle state: %w", err)
		}
	}

	return result, nil
}
