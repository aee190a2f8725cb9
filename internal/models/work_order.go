package models

import (
	"time"

	"gorm.io/gorm"
)

// WorkOrderStatus follows the maintenance lifecycle
type WorkOrderStatus string

const (
	WorkOrderOpen       WorkOrderStatus = "open"
	WorkOrderInProgress WorkOrderStatus = "in_progress"
	WorkOrderOnHold     WorkOrderStatus = "on_hold"
	WorkOrderCompleted  WorkOrderStatus = "completed"
	WorkOrderCancelled  WorkOrderStatus = "cancelled"
)

// IsTerminal reports whether the status represents finished work.
func (s WorkOrderStatus) IsTerminal() bool {
	return s == WorkOrderCompleted || s == WorkOrderCancelled
}

// WorkOrder is a maintenance job executed by a field technician
type WorkOrder struct {
	Syncable

	Title           string          `gorm:"not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description,omitempty"`
	Status          WorkOrderStatus `gorm:"type:varchar(20);default:'open';index" json:"status"`
	Priority        int             `gorm:"default:3" json:"priority"` // 1 (highest) - 5
	AssetLocalID    *string         `gorm:"type:uuid;index" json:"assetLocalId,omitempty"`
	AssignedTo      string          `gorm:"type:varchar(255)" json:"assignedTo,omitempty"`
	CompletionNotes string          `gorm:"type:text" json:"completionNotes,omitempty"`
	CompletedAt     *int64          `json:"completedAt,omitempty"` // epoch millis
	CompletedBy     string          `gorm:"type:varchar(255)" json:"completedBy,omitempty"`
	DueAt           *int64          `json:"dueAt,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for WorkOrder model
func (WorkOrder) TableName() string {
	return "work_orders"
}
