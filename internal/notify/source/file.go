package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shiftline/shiftline-sync-server/internal/notify"
	"github.com/shiftline/shiftline-sync-server/pkg/logger"
)

// fileSource reads candidate records from a folder holding one JSON file per
// notification kind (e.g. DailyReminder.json). Files for kinds that produce
// nothing this cycle may simply be absent.
type fileSource struct {
	basePath string
}

// NewFileSource creates a folder-backed record source.
func NewFileSource(basePath string) Source {
	return &fileSource{basePath: basePath}
}

func (f *fileSource) Records(_ context.Context) ([]notify.Record, error) {
	if _, err := os.Stat(f.basePath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat records folder: %w", err)
	}

	var records []notify.Record
	for _, kind := range notify.Kinds() {
		filePath := filepath.Join(f.basePath, string(kind)+".json")

		// #nosec G304 -- path is built from the configured records folder and a known kind
		data, err := os.ReadFile(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read records file for %s: %w", kind, err)
		}

		var kindRecords []notify.Record
		if err := json.Unmarshal(data, &kindRecords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal records for %s: %w", kind, err)
		}

		for _, rec := range kindRecords {
			// The file name is authoritative for the kind; records that
			// disagree are producer bugs and are skipped, not fatal.
			if rec.Kind != "" && rec.Kind != kind {
				logger.Warnf("Skipping record for %s with mismatched kind %q", rec.RecipientID, rec.Kind)
				continue
			}
			rec.Kind = kind
			if rec.Priority == "" {
				rec.Priority = notify.PriorityMedium
			}
			records = append(records, rec)
		}
	}

	return records, nil
}
