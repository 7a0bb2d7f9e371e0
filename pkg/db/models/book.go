package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book is a catalog entry plus its stock counters. The ledger invariant is
// available_qty = total_qty - outstanding loan quantity, 0 <= available <= total.
type Book struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Title        string         `gorm:"column:title;not null" json:"title"`
	Author       *string        `gorm:"column:author" json:"author,omitempty"`
	Category     *string        `gorm:"column:category" json:"category,omitempty"`
	Section      *string        `gorm:"column:section" json:"section,omitempty"`
	Shelf        *string        `gorm:"column:shelf" json:"shelf,omitempty"`
	TotalQty     int            `gorm:"column:total_qty;not null;default:0" json:"total_qty"`
	AvailableQty int            `gorm:"column:available_qty;not null;default:0" json:"available_qty"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (b *Book) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
