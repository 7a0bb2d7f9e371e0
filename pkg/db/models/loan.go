package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/pkg/enums"
)

// Loan is one borrowing transaction for a person, owning one or more items.
// Status moves LOANED -> RETURNED once and never back.
type Loan struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PersonID   uuid.UUID        `gorm:"column:person_id;type:uuid;not null;index" json:"person_id"`
	UserID     uuid.UUID        `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	LoanDate   time.Time        `gorm:"column:loan_date;not null" json:"loan_date"`
	DueDate    *time.Time       `gorm:"column:due_date" json:"due_date,omitempty"`
	ReturnDate *time.Time       `gorm:"column:return_date" json:"return_date,omitempty"`
	Status     enums.LoanStatus `gorm:"column:status;not null;default:'LOANED';index" json:"status"`
	Notes      *string          `gorm:"column:notes" json:"notes,omitempty"`
	Person     *Person          `gorm:"foreignKey:PersonID" json:"person,omitempty"`
	Items      []LoanItem       `gorm:"foreignKey:LoanID" json:"items,omitempty"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (l *Loan) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
