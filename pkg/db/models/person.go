package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Person is a borrower. Email is optional but unique (case-insensitive) when
// present; rows are soft-deleted so loan history stays intact.
type Person struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	Email     *string        `gorm:"column:email" json:"email,omitempty"`
	Phone     *string        `gorm:"column:phone" json:"phone,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (p *Person) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
