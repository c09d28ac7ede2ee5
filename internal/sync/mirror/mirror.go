// Package mirror copies named record sets from the source folder to a
// configured destination. Mirroring is idempotent: repeating a mirror with
// identical input produces identical output.
package mirror

import "context"

// Result contains the outcome of mirroring one record set.
type Result struct {
	// ItemsCopied is the number of files written at the destination
	ItemsCopied int
}

// Sink copies record sets to a destination.
//
// Errors (permission, unreachable destination, lock conflicts) are returned
// to the caller, never panicked across the tick boundary.
//
//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/shiftline/shiftline-sync-server/internal/sync/mirror Sink
type Sink interface {
	// Describe returns a human-readable destination description for status
	// reporting (e.g. a folder path or s3://bucket/prefix).
	Describe() string

	// Validate checks that the destination is reachable and writable.
	Validate(ctx context.Context) error

	// Mirror copies the named record set from the source folder to the
	// destination, preserving content faithfully.
	Mirror(ctx context.Context, recordSetName string) (*Result, error)
}
