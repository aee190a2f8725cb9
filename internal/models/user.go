package models

import (
	"time"

	"gorm.io/gorm"
)

// ReviewerAuth represents a user allowed to review escalated conflicts
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type ReviewerAuth struct {
	ID                  string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Username            string     `gorm:"unique;not null" json:"username"`
	Password            string     `gorm:"not null" json:"-"`
	Name                string     `json:"name,omitempty"`
	Role                string     `gorm:"default:'reviewer'" json:"role"`
	IsActive            bool       `gorm:"default:true" json:"isActive"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	FailedLoginAttempts int        `gorm:"default:0" json:"-"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for ReviewerAuth model
func (ReviewerAuth) TableName() string {
	return "reviewer_auths"
}
