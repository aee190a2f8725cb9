package models

import (
	"time"

	"gorm.io/datatypes"
)

// Collection is one namespaced ordered sequence of JSON records.
// The conflict audit log and the sync error log live here; each write
// re-persists the full sequence under its namespace.
type Collection struct {
	Namespace string         `gorm:"primaryKey;type:varchar(100)" json:"namespace"`
	Entries   datatypes.JSON `json:"entries"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// TableName specifies the table name for Collection model
func (Collection) TableName() string {
	return "collections"
}
