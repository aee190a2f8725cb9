package models

import "time"

// Photo is a binary attachment captured against a work order.
// The file itself lives on the device filesystem; only the metadata row
// is synced, and the binary is pushed through the upload tracker.
type Photo struct {
	Syncable

	WorkOrderLocalID string `gorm:"type:uuid;not null;index" json:"workOrderLocalId"`
	FilePath         string `gorm:"type:varchar(500);not null" json:"filePath"`
	ContentHash      string `gorm:"type:varchar(64)" json:"contentHash"` // sha256 of file contents
	SizeBytes        int64  `json:"sizeBytes"`
	CapturedAt       int64  `gorm:"not null" json:"capturedAt"` // epoch millis
	CapturedBy       string `gorm:"type:varchar(255)" json:"capturedBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Photo model
func (Photo) TableName() string {
	return "photos"
}
