package people

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/internal/audit"
	"github.com/andrepires/biblioteca-backend/pkg/db"
	"github.com/andrepires/biblioteca-backend/pkg/db/models"
	"github.com/andrepires/biblioteca-backend/pkg/enums"
	pkgerrors "github.com/andrepires/biblioteca-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput carries a new borrower. Email is optional but unique
// (case-insensitive) when present.
type CreateInput struct {
	Name        string    `json:"name" validate:"required"`
	Email       *string   `json:"email,omitempty" validate:"omitempty,email"`
	Phone       *string   `json:"phone,omitempty"`
	ActorUserID uuid.UUID `json:"-"`
}

// UpdateInput patches borrower fields.
type UpdateInput struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone *string `json:"phone,omitempty"`
}

// Service manages borrowers.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Person, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Person, error)
	List(ctx context.Context, filter ListFilter) ([]models.Person, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Person, error)
	Delete(ctx context.Context, id uuid.UUID, actorUserID uuid.UUID) error
}

type service struct {
	repo     Repository
	tx       txRunner
	recorder *audit.Recorder
}

// NewService builds the borrower service.
func NewService(repo Repository, tx txRunner, recorder *audit.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("people repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{repo: repo, tx: tx, recorder: recorder}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Person, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	email := normalizeEmail(input.Email)

	var created *models.Person
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if email != nil {
			if _, err := repo.FindByEmail(ctx, *email); err == nil {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check email")
			}
		}

		person := models.Person{Name: name, Email: email, Phone: input.Phone}
		out, err := repo.Create(ctx, &person)
		if err != nil {
			// the partial unique index is the last line of defense under
			// concurrent inserts
			if db.IsUniqueViolation(err, "uq_people_email") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create person")
		}
		created = out

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   &input.ActorUserID,
			Action:   enums.AuditActionCreate,
			Entity:   enums.AuditEntityPeople,
			EntityID: &out.ID,
			Details:  audit.Detail(name),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "person id required")
	}
	person, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "person not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load person")
	}
	return person, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Person, error) {
	out, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list people")
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Person, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "person id required")
	}

	fields := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		fields["name"] = name
	}
	if input.Phone != nil {
		fields["phone"] = input.Phone
	}
	email := normalizeEmail(input.Email)
	if input.Email != nil {
		fields["email"] = email
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	var updated *models.Person
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindByID(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "person not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load person")
		}

		if email != nil {
			other, err := repo.FindByEmail(ctx, *email)
			if err == nil && other.ID != id {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check email")
			}
		}

		if err := repo.Update(ctx, id, fields); err != nil {
			if db.IsUniqueViolation(err, "uq_people_email") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update person")
		}

		out, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload person")
		}
		updated = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID, actorUserID uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "person id required")
	}
	if actorUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		person, err := repo.FindByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "person not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load person")
		}

		hasHistory, err := repo.HasLoanHistory(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check loan history")
		}
		if hasHistory {
			return pkgerrors.New(pkgerrors.CodeConflict, "person has loan history and cannot be deleted")
		}

		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete person")
		}

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   &actorUserID,
			Action:   enums.AuditActionDelete,
			Entity:   enums.AuditEntityPeople,
			EntityID: &id,
			Details:  audit.Detail(person.Name),
		})
		return nil
	})
}

// normalizeEmail trims and lowercases; blank addresses collapse to nil so the
// unique index never sees empty strings.
func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	trimmed := strings.ToLower(strings.TrimSpace(*email))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
