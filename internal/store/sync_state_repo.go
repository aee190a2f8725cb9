package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/opslink-dev/fieldsync/internal/database"
	"github.com/opslink-dev/fieldsync/internal/models"
)

// SyncStateRepo persists per-table reconciliation bookkeeping
type SyncStateRepo struct {
	db *database.DB
}

// NewSyncStateRepo creates a sync state repository
func NewSyncStateRepo(db *database.DB) *SyncStateRepo {
	return &SyncStateRepo{db: db}
}

// Get returns the state row for a table, or nil when never synced
func (r *SyncStateRepo) Get(table string) (*models.SyncState, error) {
	var state models.SyncState
	err := r.db.DB.Where("record_table = ?", table).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state for %s: %w", table, err)
	}
	return &state, nil
}

// Upsert writes a state row keyed by table name
func (r *SyncStateRepo) Upsert(state *models.SyncState) error {
	existing, err := r.Get(state.RecordTable)
	if err != nil {
		return err
	}
	if existing != nil {
		state.ID = existing.ID
	}
	if err := r.db.DB.Save(state).Error; err != nil {
		return fmt.Errorf("failed to save sync state for %s: %w", state.RecordTable, err)
	}
	return nil
}

// LastFullSync returns the timestamp of the last successful full cycle,
// or nil when no cycle has ever completed.
func (r *SyncStateRepo) LastFullSync() (*time.Time, error) {
	state, err := r.Get(models.FullSyncKey)
	if err != nil || state == nil {
		return nil, err
	}
	return state.LastFullSyncAt, nil
}
