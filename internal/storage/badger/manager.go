package badger

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	jobs   interfaces.JobStore
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		jobs:   NewJobStorage(db, logger),
		logger: logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStore returns the job storage interface
func (m *Manager) JobStore() interfaces.JobStore {
	return m.jobs
}

// StartMaintenance launches the background value log garbage collector.
func (m *Manager) StartMaintenance(ctx context.Context) {
	m.db.StartGC(ctx)
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
