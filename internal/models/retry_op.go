package models

import (
	"time"

	"gorm.io/datatypes"
)

// RetryState tracks a queued operation through its lifecycle
type RetryState string

const (
	RetryStatePending    RetryState = "pending"
	RetryStateInProgress RetryState = "in_progress"
	RetryStateFailed     RetryState = "failed"
	RetryStateCompleted  RetryState = "completed"
)

// RetryOp is a sync operation that failed and is waiting for another
// attempt. Rows survive app restarts; the queue loads them on startup.
type RetryOp struct {
	ID            string         `gorm:"primaryKey;type:uuid" json:"id"`
	RecordTable   string         `gorm:"column:record_table;type:varchar(100);not null;index:idx_retry_record" json:"tableName"`
	RecordID      string         `gorm:"type:varchar(255);not null;index:idx_retry_record" json:"recordId"`
	ServerID      *int64         `json:"serverId,omitempty"`                         // nil until the record first reaches the server
	Operation     string         `gorm:"type:varchar(20);not null" json:"operation"` // push, pull
	Payload       datatypes.JSON `json:"payload,omitempty"`
	Attempts      int            `gorm:"default:0" json:"attempts"`
	LastAttemptAt int64          `json:"lastAttemptAt"` // epoch millis, 0 = never attempted
	State         RetryState     `gorm:"type:varchar(20);default:'pending';index" json:"state"`
	LastError     *string        `gorm:"type:text" json:"lastError,omitempty"`
	ErrorCategory string         `gorm:"type:varchar(20)" json:"errorCategory,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for RetryOp model
func (RetryOp) TableName() string {
	return "retry_queue"
}
