package loans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/pkg/db/models"
	"github.com/andrepires/biblioteca-backend/pkg/enums"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Repository persists loans and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, loan *models.Loan) (*models.Loan, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.LoanItem, error)
	List(ctx context.Context, filter ListFilter) ([]models.Loan, error)

	OutstandingForPerson(ctx context.Context, personID uuid.UUID) (int, error)
	AddReturnedQty(ctx context.Context, itemID uuid.UUID, qty int) error
	MarkReturned(ctx context.Context, loanID uuid.UUID, at time.Time) error
	UpdateDueDate(ctx context.Context, loanID uuid.UUID, due time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a loans repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, loan *models.Loan) (*models.Loan, error) {
	if err := r.db.WithContext(ctx).Create(loan).Error; err != nil {
		return nil, err
	}
	return loan, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Book").
		Preload("Person").
		Where("id = ?", id).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.LoanItem, error) {
	var item models.LoanItem
	err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Loan, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Preload("Items").
		Preload("Items.Book").
		Preload("Person").
		Order("loans.loan_date DESC").
		Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Status != "" {
		q = q.Where("loans.status = ?", filter.Status)
	}
	if filter.PersonID != uuid.Nil {
		q = q.Where("loans.person_id = ?", filter.PersonID)
	}
	if filter.Overdue {
		q = q.Where("loans.status = ?", enums.LoanStatusLoaned).
			Where("loans.due_date IS NOT NULL").
			Where("loans.due_date < ?", time.Now().UTC())
	}
	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		q = q.Joins("JOIN people ON people.id = loans.person_id").
			Where("LOWER(people.name) LIKE LOWER(?)", pattern)
	}

	var out []models.Loan
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// OutstandingForPerson sums qty minus returned_qty across the person's active
// loans. This is the number the per-person cap is checked against.
func (r *repository) OutstandingForPerson(ctx context.Context, personID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LoanItem{}).
		Joins("JOIN loans ON loans.id = loan_items.loan_id").
		Where("loans.person_id = ?", personID).
		Where("loans.status = ?", enums.LoanStatusLoaned).
		Select("COALESCE(SUM(loan_items.qty - loan_items.returned_qty), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

func (r *repository) AddReturnedQty(ctx context.Context, itemID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.LoanItem{}).
		Where("id = ?", itemID).
		Update("returned_qty", gorm.Expr("returned_qty + ?", qty)).Error
}

func (r *repository) MarkReturned(ctx context.Context, loanID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ?", loanID).
		Updates(map[string]any{
			"status":      enums.LoanStatusReturned,
			"return_date": at,
		}).Error
}

func (r *repository) UpdateDueDate(ctx context.Context, loanID uuid.UUID, due time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ?", loanID).
		Update("due_date", due).Error
}
