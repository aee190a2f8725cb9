// Package store provides the durable persistence layer for the
// reconciliation core: namespaced JSON collections plus row-per-entry
// repositories for the retry and upload queues.
package store

import (
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/opslink-dev/fieldsync/internal/database"
	"github.com/opslink-dev/fieldsync/internal/models"
)

// Collections stores ordered JSON sequences under namespaced keys.
// Each Save re-persists the full sequence for its namespace, so callers
// must serialize writes per namespace (single-writer discipline).
type Collections struct {
	db *database.DB
}

// NewCollections creates a collection store backed by the local database
func NewCollections(db *database.DB) *Collections {
	return &Collections{db: db}
}

// Load returns the raw JSON sequence for a namespace, or nil when the
// namespace has never been written.
func (c *Collections) Load(namespace string) ([]byte, error) {
	var row models.Collection
	err := c.db.DB.Where("namespace = ?", namespace).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", namespace, err)
	}
	return []byte(row.Entries), nil
}

// Save replaces the full sequence for a namespace
func (c *Collections) Save(namespace string, entries []byte) error {
	row := models.Collection{
		Namespace: namespace,
		Entries:   datatypes.JSON(entries),
	}
	err := c.db.DB.Save(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save collection %s: %w", namespace, err)
	}
	return nil
}

// Delete removes a namespace entirely. Deleting a namespace that does
// not exist is not an error.
func (c *Collections) Delete(namespace string) error {
	err := c.db.DB.Where("namespace = ?", namespace).Delete(&models.Collection{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", namespace, err)
	}
	return nil
}
