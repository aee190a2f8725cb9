package store

import (
	"fmt"

	"github.com/opslink-dev/fieldsync/internal/database"
	"github.com/opslink-dev/fieldsync/internal/models"
)

// UploadRepo persists upload tracker entries
type UploadRepo struct {
	db *database.DB
}

// NewUploadRepo creates an upload tracker repository
func NewUploadRepo(db *database.DB) *UploadRepo {
	return &UploadRepo{db: db}
}

// LoadAll returns every persisted entry, oldest first
func (r *UploadRepo) LoadAll() ([]models.Upload, error) {
	var entries []models.Upload
	if err := r.db.DB.Order("created_at asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load upload queue: %w", err)
	}
	return entries, nil
}

// Save upserts an entry
func (r *UploadRepo) Save(entry *models.Upload) error {
	if err := r.db.DB.Save(entry).Error; err != nil {
		return fmt.Errorf("failed to save upload %s: %w", entry.PhotoID, err)
	}
	return nil
}

// Delete removes an entry by photo id
func (r *UploadRepo) Delete(photoID string) error {
	if err := r.db.DB.Where("photo_id = ?", photoID).Delete(&models.Upload{}).Error; err != nil {
		return fmt.Errorf("failed to delete upload %s: %w", photoID, err)
	}
	return nil
}
