package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shiftline/shiftline-sync-server/internal/notify"
)

const (
	// ThrottleFileName is the name of the throttle state file
	ThrottleFileName = "throttle.json"
)

// fileStore implements Store using a JSON file on the local filesystem
type fileStore struct {
	basePath string
}

// NewFileStore creates a file-based throttle store. basePath is the data
// directory where the throttle state file lives.
func NewFileStore(basePath string) Store {
	return &fileStore{basePath: basePath}
}

// Load reads the throttle state file. A missing file yields an empty map
// (first run).
func (f *fileStore) Load(_ context.Context) (map[notify.ThrottleKey]notify.ThrottleEntry, error) {
	filePath := filepath.Join(f.basePath, ThrottleFileName)

	// #nosec G304 -- filePath is constructed from the trusted data directory
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[notify.ThrottleKey]notify.ThrottleEntry), nil
		}
		return nil, fmt.Errorf("failed to read throttle state file: %w", err)
	}

	var entries []notify.ThrottleEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal throttle state: %w", err)
	}

	result := make(map[notify.ThrottleKey]notify.ThrottleEntry, len(entries))
	for _, e := range entries {
		result[e.Key()] = e
	}
	return result, nil
}

// Save writes the throttle state via a temporary file and atomic rename so
// the next Load never observes partial state.
func (f *fileStore) Save(_ context.Context, entries map[notify.ThrottleKey]notify.ThrottleEntry) error {
	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	list := make([]notify.ThrottleEntry, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal throttle state: %w", err)
	}

	filePath := filepath.Join(f.basePath, ThrottleFileName)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary throttle state file: %w", err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename throttle state file: %w", err)
	}

	return nil
}
