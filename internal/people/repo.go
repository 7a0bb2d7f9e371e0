package people

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/pkg/db/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListFilter narrows the borrower listing.
type ListFilter struct {
	Query  string
	Limit  int
	Offset int
}

// Repository persists borrowers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, person *models.Person) (*models.Person, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Person, error)
	FindByEmail(ctx context.Context, email string) (*models.Person, error)
	List(ctx context.Context, filter ListFilter) ([]models.Person, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	HasLoanHistory(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a people repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, person *models.Person) (*models.Person, error) {
	if err := r.db.WithContext(ctx).Create(person).Error; err != nil {
		return nil, err
	}
	return person, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	var person models.Person
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&person).Error
	if err != nil {
		return nil, err
	}
	return &person, nil
}

// FindByEmail matches case-insensitively on the trimmed address.
func (r *repository) FindByEmail(ctx context.Context, email string) (*models.Person, error) {
	var person models.Person
	err := r.db.WithContext(ctx).
		Where("email IS NOT NULL AND LOWER(TRIM(email)) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&person).Error
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Person, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := r.db.WithContext(ctx).
		Model(&models.Person{}).
		Order("name ASC").
		Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		q = q.Where("LOWER(name) LIKE LOWER(?) OR LOWER(COALESCE(email, '')) LIKE LOWER(?)", pattern, pattern)
	}

	var out []models.Person
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Person{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Person{}, "id = ?", id).Error
}

// HasLoanHistory reports whether the person ever borrowed. History blocks
// deletion so old loans keep a valid borrower reference.
func (r *repository) HasLoanHistory(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("person_id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
