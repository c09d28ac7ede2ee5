package tracking

import (
	"github.com/shiftline/shiftline-sync-server/internal/config"
	"github.com/shiftline/shiftline-sync-server/internal/db"
)

// NewStore creates a throttle Store based on the configured storage type.
//
// For file-based storage it returns a store writing atomic JSON snapshots
// under the data directory. For database storage the database handle must
// not be nil.
func NewStore(cfg *config.Config, database *db.DB) Store {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		if database != nil {
			return NewDBStore(database)
		}
		// Fall back to file storage rather than fail; the caller validated
		// config, so this only happens in tests wiring stores directly.
		return NewFileStore(cfg.GetDataDir())
	default:
		return NewFileStore(cfg.GetDataDir())
	}
}
