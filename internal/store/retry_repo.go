package store

import (
	"fmt"

	"github.com/opslink-dev/fieldsync/internal/database"
	"github.com/opslink-dev/fieldsync/internal/models"
)

// RetryRepo persists retry queue entries
type RetryRepo struct {
	db *database.DB
}

// NewRetryRepo creates a retry queue repository
func NewRetryRepo(db *database.DB) *RetryRepo {
	return &RetryRepo{db: db}
}

// LoadAll returns every persisted entry, oldest first
func (r *RetryRepo) LoadAll() ([]models.RetryOp, error) {
	var ops []models.RetryOp
	if err := r.db.DB.Order("created_at asc").Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("failed to load retry queue: %w", err)
	}
	return ops, nil
}

// Save upserts an entry
func (r *RetryRepo) Save(op *models.RetryOp) error {
	if err := r.db.DB.Save(op).Error; err != nil {
		return fmt.Errorf("failed to save retry op %s: %w", op.ID, err)
	}
	return nil
}

// Delete removes an entry by id
func (r *RetryRepo) Delete(id string) error {
	if err := r.db.DB.Where("id = ?", id).Delete(&models.RetryOp{}).Error; err != nil {
		return fmt.Errorf("failed to delete retry op %s: %w", id, err)
	}
	return nil
}
