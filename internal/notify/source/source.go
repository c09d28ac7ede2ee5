// Package source yields candidate notification records from upstream
// business data. Implementations face external systems; the engine only
// depends on the Source contract.
package source

import (
	"context"

	"github.com/shiftline/shiftline-sync-server/internal/notify"
)

// Source yields the current set of candidate notification records per kind.
//
//go:generate mockgen -destination=mocks/mock_source.go -package=mocks github.com/shiftline/shiftline-sync-server/internal/notify/source Source
type Source interface {
	// Records returns every candidate record currently produced upstream.
	// Records are immutable once read into a sync cycle.
	Records(ctx context.Context) ([]notify.Record, error)
}
