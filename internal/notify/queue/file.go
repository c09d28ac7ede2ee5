package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/shiftline/shiftline-sync-server/internal/notify"
	"github.com/shiftline/shiftline-sync-server/pkg/logger"
)

const (
	// QueueFileName is the name of the pending queue file
	QueueFileName = "pending.json"

	// lockRetryInterval is how often a blocked lock acquisition is retried
	lockRetryInterval = 50 * time.Millisecond
)

// fileQueue implements Queue using a JSON file guarded by an advisory file
// lock. The delivery agent takes the same lock when flipping acknowledged
// flags, so every read-modify-write cycle here is atomic with respect to it.
type fileQueue struct {
	basePath string
	lock     *flock.Flock
}

// NewFileQueue creates a file-based queue rooted at basePath.
func NewFileQueue(basePath string) Queue {
	return &fileQueue{
		basePath: basePath,
		lock:     flock.New(filepath.Join(basePath, QueueFileName+".lock")),
	}
}

func (q *fileQueue) filePath() string {
	return filepath.Join(q.basePath, QueueFileName)
}

// withLock runs fn while holding the queue file lock.
func (q *fileQueue) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(q.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	locked, err := q.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("failed to acquire queue lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire queue lock")
	}
	defer func() {
		if unlockErr := q.lock.Unlock(); unlockErr != nil {
			logger.Warnf("Failed to release queue lock: %v", unlockErr)
		}
	}()

	return fn()
}

// load reads the queue file. A missing file is an empty queue; a corrupt
// file is quarantined (renamed aside) and the queue restarts empty.
func (q *fileQueue) load() ([]notify.QueueItem, error) {
	// #nosec G304 -- path is constructed from the trusted data directory
	data, err := os.ReadFile(q.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	var items []notify.QueueItem
	if err := json.Unmarshal(data, &items); err != nil {
		quarantine := q.filePath() + ".corrupt"
		logger.Warnf("Queue file is corrupt, quarantining to %s: %v", quarantine, err)
		if renameErr := os.Rename(q.filePath(), quarantine); renameErr != nil {
			return nil, fmt.Errorf("failed to quarantine corrupt queue file: %w", renameErr)
		}
		return nil, nil
	}
	return items, nil
}

// save writes the queue file via a temporary file and atomic rename.
func (q *fileQueue) save(items []notify.QueueItem) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	tempPath := q.filePath() + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary queue file: %w", err)
	}
	if err := os.Rename(tempPath, q.filePath()); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename queue file: %w", err)
	}
	return nil
}

func (q *fileQueue) List(ctx context.Context) ([]notify.QueueItem, error) {
	var items []notify.QueueItem
	err := q.withLock(ctx, func() error {
		loaded, err := q.load()
		if err != nil {
			return err
		}
		items = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Less(items[j])
	})
	return items, nil
}

func (q *fileQueue) Append(ctx context.Context, item notify.QueueItem) error {
	return q.withLock(ctx, func() error {
		items, err := q.load()
		if err != nil {
			return err
		}

		for _, existing := range items {
			if existing.ItemKey == item.ItemKey {
				return fmt.Errorf("queue item with key %s already exists", item.ItemKey)
			}
		}

		return q.save(append(items, item))
	})
}

func (q *fileQueue) RemoveAcknowledged(ctx context.Context) (int, error) {
	removed := 0
	err := q.withLock(ctx, func() error {
		// Re-read under the lock: an acknowledgment may have landed at any
		// point since the caller last looked at the queue.
		items, err := q.load()
		if err != nil {
			return err
		}

		remaining := items[:0]
		for _, item := range items {
			if item.Acknowledged {
				removed++
				continue
			}
			remaining = append(remaining, item)
		}

		if removed == 0 {
			return nil
		}
		return q.save(remaining)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (q *fileQueue) Acknowledge(ctx context.Context, itemKey string) error {
	return q.withLock(ctx, func() error {
		items, err := q.load()
		if err != nil {
			return err
		}

		for i := range items {
			if items[i].ItemKey == itemKey {
				items[i].Acknowledged = true
				return q.save(items)
			}
		}
		return fmt.Errorf("queue item with key %s not found", itemKey)
	})
}
