package sqlite

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/common"
	"github.com/ternarybob/dartseries/internal/interfaces"
)

// Manager implements the StorageManager interface
type Manager struct {
	db        *SQLiteDB
	record    interfaces.RecordStorage
	directory interfaces.DirectoryStorage
	progress  interfaces.ProgressStorage
	logger    arbor.ILogger
}

// NewManager creates a new SQLite storage manager
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:        db,
		record:    NewRecordStorage(db, logger),
		directory: NewDirectoryStorage(db, logger),
		progress:  NewProgressStorage(db, logger),
		logger:    logger,
	}, nil
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

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.DB()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
