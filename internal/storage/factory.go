package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/common"
	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/storage/badger"
	"github.com/ternarybob/dartseries/internal/storage/memory"
	"github.com/ternarybob/dartseries/internal/storage/sqlite"
)

// NewStorageManager creates a new storage manager based on config
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	switch config.Storage.Type {
	case "sqlite", "":
		return sqlite.NewManager(logger, &config.Storage.SQLite)
	case "badger":
		return badger.NewManager(logger, &config.Storage.Badger)
	case "memory":
		logger.Warn().Msg("Using in-memory storage; cached records are lost on exit")
		return memory.NewManager(logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (expected sqlite, badger or memory)", config.Storage.Type)
	}
}
