// Package queue provides the durable pending-notification queue shared with
// the external delivery agent. The agent drains items asynchronously and is,
// by contract, the only writer of the acknowledged flag; the engine removes
// items once it observes them acknowledged.
package queue

import (
	"context"

	"github.com/shiftline/shiftline-sync-server/internal/notify"
)

// Queue defines the interface for durable queue persistence.
//
// Acknowledged is monotonic: implementations must never overwrite a stored
// true with false, even when racing with the delivery agent.
//
//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks github.com/shiftline/shiftline-sync-server/internal/notify/queue Queue
type Queue interface {
	// List returns all live (non-removed) items ordered for delivery:
	// priority high to low, then FIFO by enqueue time.
	List(ctx context.Context) ([]notify.QueueItem, error)

	// Append adds a new pending item. Returns an error if a live item with
	// the same item key already exists.
	Append(ctx context.Context, item notify.QueueItem) error

	// RemoveAcknowledged deletes every item whose acknowledged flag has been
	// set by the delivery agent and returns how many were reclaimed.
	RemoveAcknowledged(ctx context.Context) (int, error)

	// Acknowledge flips the acknowledged flag for an item. This is the
	// delivery agent's half of the handoff protocol; the engine never calls
	// it.
	Acknowledge(ctx context.Context, itemKey string) error
}
