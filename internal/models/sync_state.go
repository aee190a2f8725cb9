package models

import "time"

// FullSyncKey is the bookkeeping row for whole-cycle state
const FullSyncKey = "_full"

// SyncState tracks reconciliation bookkeeping per synced table.
// One row per table plus a "_full" row for whole-cycle bookkeeping.
type SyncState struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	RecordTable      string     `gorm:"column:record_table;type:varchar(100);not null;uniqueIndex" json:"tableName"`
	LastSyncAt       *time.Time `json:"lastSyncAt"`
	LastFullSyncAt   *time.Time `json:"lastFullSyncAt"`
	LastSyncStatus   string     `gorm:"type:varchar(50)" json:"lastSyncStatus"`
	RecordsSynced    int        `gorm:"default:0" json:"recordsSynced"`
	RecordsConflicts int        `gorm:"default:0" json:"recordsConflicts"`
	SyncDurationMs   int        `json:"syncDurationMs"`
	ErrorMessage     *string    `gorm:"type:text" json:"errorMessage,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name
func (SyncState) TableName() string {
	return "sync_states"
}
