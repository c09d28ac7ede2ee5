// Package tracking persists throttle state across process restarts. The
// admission windows (hours) vastly exceed the tick interval (minutes), so
// losing this state on restart would cause duplicate notification floods.
package tracking

import (
	"context"

	"github.com/shiftline/shiftline-sync-server/internal/notify"
)

// Store defines the interface for throttle state persistence.
//
// A Save must be atomic from the perspective of the next Load: no partial or
// corrupt state is ever observable. A failed Load is treated by callers as a
// cold start (empty state), never as fatal.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/shiftline/shiftline-sync-server/internal/notify/tracking Store
type Store interface {
	// Load returns all persisted throttle entries keyed by (kind, recipient)
	Load(ctx context.Context) (map[notify.ThrottleKey]notify.ThrottleEntry, error)

	// Save persists the full set of throttle entries
	Save(ctx context.Context, entries map[notify.ThrottleKey]notify.ThrottleEntry) error
}
