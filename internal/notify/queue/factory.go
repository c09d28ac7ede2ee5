package queue

import (
	"github.com/shiftline/shiftline-sync-server/internal/config"
	"github.com/shiftline/shiftline-sync-server/internal/db"
)

// NewQueue creates a Queue based on the configured storage type.
//
// The file backend keeps the queue in a lock-guarded JSON file that the
// delivery agent shares; the database backend keeps it in SQLite.
func NewQueue(cfg *config.Config, database *db.DB) Queue {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		if database != nil {
			return NewDBQueue(database)
		}
		return NewFileQueue(cfg.GetDataDir())
	default:
		return NewFileQueue(cfg.GetDataDir())
	}
}
