package loans

import (
	"time"

	"github.com/google/uuid"
)

// ItemInput is one requested book line on a new loan.
type ItemInput struct {
	BookID uuid.UUID `json:"book_id" validate:"required"`
	Qty    int       `json:"qty" validate:"required,min=1"`
	Shelf  *string   `json:"shelf,omitempty"`
}

// CreateInput carries everything needed to open a loan.
type CreateInput struct {
	PersonID    uuid.UUID   `json:"person_id" validate:"required"`
	Items       []ItemInput `json:"items" validate:"required,min=1,dive"`
	DueDate     *time.Time  `json:"due_date,omitempty"`
	Notes       *string     `json:"notes,omitempty"`
	ActorUserID uuid.UUID   `json:"-"`
}

// ReturnItemInput returns part or all of a single line.
type ReturnItemInput struct {
	LoanID      uuid.UUID
	ItemID      uuid.UUID
	Qty         int
	ActorUserID uuid.UUID
}

// ReturnAllInput closes a loan outright.
type ReturnAllInput struct {
	LoanID      uuid.UUID
	ActorUserID uuid.UUID
}

// RenewInput replaces the due date on an active loan.
type RenewInput struct {
	LoanID      uuid.UUID
	DueDate     time.Time
	ActorUserID uuid.UUID
}

// ListFilter narrows the loan listing. Overdue implies active loans whose due
// date has passed.
type ListFilter struct {
	Status   string
	PersonID uuid.UUID
	Query    string
	Overdue  bool
	Limit    int
	Offset   int
}
