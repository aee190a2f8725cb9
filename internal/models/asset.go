package models

import (
	"time"

	"gorm.io/gorm"
)

// Asset is a maintainable piece of equipment tracked by the app
type Asset struct {
	Syncable

	Name        string `gorm:"not null" json:"name"`
	TagCode     string `gorm:"type:varchar(64);uniqueIndex" json:"tagCode"` // printed QR tag
	Location    string `gorm:"type:varchar(255)" json:"location,omitempty"`
	Category    string `gorm:"type:varchar(100)" json:"category,omitempty"`
	Criticality int    `gorm:"default:3" json:"criticality"` // 1 (critical) - 5
	Notes       string `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Asset model
func (Asset) TableName() string {
	return "assets"
}

// MeterReading is a numeric measurement taken against an asset.
// Readings are applied server-side once accepted, so the server value
// is authoritative during reconciliation.
type MeterReading struct {
	Syncable

	AssetLocalID string  `gorm:"type:uuid;not null;index" json:"assetLocalId"`
	MeterName    string  `gorm:"type:varchar(100);not null" json:"meterName"`
	Value        float64 `gorm:"not null" json:"value"`
	Unit         string  `gorm:"type:varchar(20)" json:"unit,omitempty"`
	ReadAt       int64   `gorm:"not null" json:"readAt"` // epoch millis
	ReadBy       string  `gorm:"type:varchar(255)" json:"readBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for MeterReading model
func (MeterReading) TableName() string {
	return "meter_readings"
}
