package models

import "time"

// UploadState tracks a binary upload through its lifecycle
type UploadState string

const (
	UploadStatePending   UploadState = "pending"
	UploadStateUploading UploadState = "uploading"
	UploadStateCompleted UploadState = "completed"
	UploadStateFailed    UploadState = "failed"
)

// Upload tracks a photo binary being pushed to the server. Keyed by the
// photo it carries rather than by record mutation, so an interrupted
// upload can be resumed without duplicating the artifact.
type Upload struct {
	PhotoID       string      `gorm:"primaryKey;type:uuid" json:"photoId"`
	FilePath      string      `gorm:"type:varchar(500);not null" json:"filePath"`
	ContentHash   string      `gorm:"type:varchar(64)" json:"contentHash"`
	Attempts      int         `gorm:"default:0" json:"attempts"`
	LastAttemptAt int64       `json:"lastAttemptAt"` // epoch millis, 0 = never attempted
	State         UploadState `gorm:"type:varchar(20);default:'pending';index" json:"state"`
	SizeBytes     int64       `json:"sizeBytes"`
	BytesSent     int64       `json:"bytesSent"`
	LastError     *string     `gorm:"type:text" json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Upload model
func (Upload) TableName() string {
	return "upload_queue"
}
