package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoanItem is one book-and-quantity line within a loan. Qty is immutable once
// created; ReturnedQty only grows, up to Qty.
type LoanItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	LoanID      uuid.UUID `gorm:"column:loan_id;type:uuid;not null;index" json:"loan_id"`
	BookID      uuid.UUID `gorm:"column:book_id;type:uuid;not null;index" json:"book_id"`
	Qty         int       `gorm:"column:qty;not null;default:1" json:"qty"`
	Shelf       *string   `gorm:"column:shelf" json:"shelf,omitempty"`
	ReturnedQty int       `gorm:"column:returned_qty;not null;default:0" json:"returned_qty"`
	Book        *Book     `gorm:"foreignKey:BookID" json:"book,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Remaining is the quantity still out on loan for this line.
func (i LoanItem) Remaining() int {
	return i.Qty - i.ReturnedQty
}

func (i *LoanItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
