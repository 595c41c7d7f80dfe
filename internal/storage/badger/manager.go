package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/common"
	"github.com/ternarybob/dartseries/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	record    interfaces.RecordStorage
	directory interfaces.DirectoryStorage
	progress  interfaces.ProgressStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		record:    NewRecordStorage(db, logger),
		directory: NewDirectoryStorage(db, logger),
		progress:  NewProgressStorage(db, logger),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// RecordStorage returns the financial record cache
func (m *Manager) RecordStorage() interfaces.RecordStorage {
	return m.record
}

// DirectoryStorage returns the corp-code directory store
func (m *Manager) DirectoryStorage() interfaces.DirectoryStorage {
	return m.directory
}

// ProgressStorage returns the batch bookkeeping store
func (m *Manager) ProgressStorage() interfaces.ProgressStorage {
	return m.progress
}

// DB returns the underlying badgerhold store
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
