package mirror

import (
	"fmt"

	"github.com/shiftline/shiftline-sync-server/internal/config"
)

// NewSink creates a Sink for the given destination. Returns an error when the
// destination is nil or invalid; callers treat that as "unconfigured".
func NewSink(sourcePath string, dest *config.DestinationConfig) (Sink, error) {
	if dest == nil {
		return nil, fmt.Errorf("no destination configured")
	}
	if err := config.ValidateDestination(dest); err != nil {
		return nil, err
	}

	if dest.S3 != nil {
		return NewMinioSink(sourcePath, dest.S3)
	}
	return NewFileSink(sourcePath, dest.Path), nil
}
