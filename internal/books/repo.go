package books

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/pkg/db/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListFilter narrows the catalog listing.
type ListFilter struct {
	Query    string
	Category string
	Limit    int
	Offset   int
}

// Repository persists catalog entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, book *models.Book) (*models.Book, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error)
	List(ctx context.Context, filter ListFilter) ([]models.Book, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	HasLoanHistory(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a books repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, book *models.Book) (*models.Book, error) {
	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		return nil, err
	}
	return book, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Book, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Order("title ASC").
		Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		q = q.Where("LOWER(title) LIKE LOWER(?) OR LOWER(COALESCE(author, '')) LIKE LOWER(?)", pattern, pattern)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}

	var out []models.Book
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Book{}, "id = ?", id).Error
}

// HasLoanHistory reports whether any loan item ever referenced the book.
// History blocks deletion so past loans keep a valid reference.
func (r *repository) HasLoanHistory(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LoanItem{}).
		Where("book_id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
