package books

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/internal/audit"
	"github.com/andrepires/biblioteca-backend/internal/inventory"
	"github.com/andrepires/biblioteca-backend/pkg/db/models"
	"github.com/andrepires/biblioteca-backend/pkg/enums"
	pkgerrors "github.com/andrepires/biblioteca-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput carries a new catalog entry. InitialQty seeds both stock
// counters.
type CreateInput struct {
	Title       string    `json:"title" validate:"required"`
	Author      *string   `json:"author,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Section     *string   `json:"section,omitempty"`
	Shelf       *string   `json:"shelf,omitempty"`
	InitialQty  int       `json:"initial_qty" validate:"min=0"`
	ActorUserID uuid.UUID `json:"-"`
}

// UpdateInput patches catalog metadata. Stock counters are only reachable
// through AdjustStock.
type UpdateInput struct {
	Title    *string `json:"title,omitempty"`
	Author   *string `json:"author,omitempty"`
	Category *string `json:"category,omitempty"`
	Section  *string `json:"section,omitempty"`
	Shelf    *string `json:"shelf,omitempty"`
}

// Service manages the catalog.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Book, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Book, error)
	List(ctx context.Context, filter ListFilter) ([]models.Book, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Book, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int, actorUserID uuid.UUID) (*models.Book, error)
	Delete(ctx context.Context, id uuid.UUID, actorUserID uuid.UUID) error
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory inventory.Service
	recorder  *audit.Recorder
}

// NewService builds the catalog service.
func NewService(repo Repository, tx txRunner, inv inventory.Service, recorder *audit.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("books repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{repo: repo, tx: tx, inventory: inv, recorder: recorder}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Book, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if input.InitialQty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial qty cannot be negative")
	}

	var created *models.Book
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		book := models.Book{
			Title:        title,
			Author:       input.Author,
			Category:     input.Category,
			Section:      input.Section,
			Shelf:        input.Shelf,
			TotalQty:     input.InitialQty,
			AvailableQty: input.InitialQty,
		}
		out, err := repo.Create(ctx, &book)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create book")
		}
		created = out

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   &input.ActorUserID,
			Action:   enums.AuditActionCreate,
			Entity:   enums.AuditEntityBooks,
			EntityID: &out.ID,
			Details:  audit.Detail(title),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	book, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
	}
	return book, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Book, error) {
	out, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list books")
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Book, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}

	fields := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
		}
		fields["title"] = title
	}
	if input.Author != nil {
		fields["author"] = input.Author
	}
	if input.Category != nil {
		fields["category"] = input.Category
	}
	if input.Section != nil {
		fields["section"] = input.Section
	}
	if input.Shelf != nil {
		fields["shelf"] = input.Shelf
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, id, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update book")
	}
	return s.Get(ctx, id)
}

func (s *service) AdjustStock(ctx context.Context, id uuid.UUID, delta int, actorUserID uuid.UUID) (*models.Book, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if actorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var updated *models.Book
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		book, err := s.inventory.AdjustStock(ctx, tx, id, delta)
		if err != nil {
			return err
		}
		updated = book

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   &actorUserID,
			Action:   enums.AuditActionAdjustStock,
			Entity:   enums.AuditEntityBooks,
			EntityID: &id,
			Details:  audit.Detail(fmt.Sprintf("delta %+d, total %d, available %d", delta, book.TotalQty, book.AvailableQty)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID, actorUserID uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if actorUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		book, err := repo.FindByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
		}

		hasHistory, err := repo.HasLoanHistory(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check loan history")
		}
		if hasHistory {
			return pkgerrors.New(pkgerrors.CodeConflict, "book has loan history and cannot be deleted")
		}

		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete book")
		}

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   &actorUserID,
			Action:   enums.AuditActionDelete,
			Entity:   enums.AuditEntityBooks,
			EntityID: &id,
			Details:  audit.Detail(book.Title),
		})
		return nil
	})
}
