package loans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/andrepires/biblioteca-backend/internal/audit"
	"github.com/andrepires/biblioteca-backend/internal/inventory"
	"github.com/andrepires/biblioteca-backend/pkg/db/models"
	"github.com/andrepires/biblioteca-backend/pkg/enums"
	pkgerrors "github.com/andrepires/biblioteca-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the loan lifecycle: open, partial return, full return,
// renewal. All stock movement goes through the inventory ledger inside the
// same transaction as the loan write.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Loan, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	List(ctx context.Context, filter ListFilter) ([]models.Loan, error)
	ReturnItem(ctx context.Context, input ReturnItemInput) (*models.Loan, error)
	ReturnAll(ctx context.Context, input ReturnAllInput) (*models.Loan, error)
	Renew(ctx context.Context, input RenewInput) (*models.Loan, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory inventory.Service
	recorder  *audit.Recorder
	maxActive int
}

// NewService builds the loan service. maxActive caps the outstanding borrowed
// quantity per person.
func NewService(repo Repository, tx txRunner, inv inventory.Service, recorder *audit.Recorder, maxActive int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("loans repository required")
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
	if maxActive <= 0 {
		return nil, fmt.Errorf("maxActive must be positive")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		inventory: inv,
		recorder:  recorder,
		maxActive: maxActive,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Loan, error) {
	if input.PersonID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "person id required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	requested := 0
	for _, item := range input.Items {
		if item.BookID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item book id required")
		}
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item qty must be positive")
		}
		requested += item.Qty
	}

	var loanID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var person models.Person
		if err := personQuery(ctx, tx, input.PersonID).First(&person).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "person not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load person")
		}

		// outstanding count and the new inserts must see each other across
		// concurrent creations; the person row lock taken above serializes
		// them, since fresh loan inserts alone never conflict
		outstanding, err := repo.OutstandingForPerson(ctx, input.PersonID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count outstanding items")
		}
		if outstanding+requested > s.maxActive {
			return pkgerrors.New(pkgerrors.CodeBorrowLimit,
				fmt.Sprintf("borrow limit exceeded: %d outstanding, %d requested, limit %d", outstanding, requested, s.maxActive)).
				WithDetails(map[string]any{
					"outstanding": outstanding,
					"requested":   requested,
					"limit":       s.maxActive,
				})
		}

		for _, item := range input.Items {
			if err := s.inventory.Reserve(ctx, tx, item.BookID, item.Qty); err != nil {
				return err
			}
		}

		loan := models.Loan{
			PersonID: input.PersonID,
			UserID:   input.ActorUserID,
			LoanDate: time.Now().UTC(),
			DueDate:  input.DueDate,
			Status:   enums.LoanStatusLoaned,
			Notes:    input.Notes,
		}
		for _, item := range input.Items {
			loan.Items = append(loan.Items, models.LoanItem{
				BookID: item.BookID,
				Qty:    item.Qty,
				Shelf:  item.Shelf,
			})
		}
		created, err := repo.Create(ctx, &loan)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loan")
		}
		loanID = created.ID

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   &input.ActorUserID,
			Action:   enums.AuditActionCreate,
			Entity:   enums.AuditEntityLoans,
			EntityID: &created.ID,
			Details:  audit.Detail(fmt.Sprintf("person %s, %d item(s)", person.Name, len(input.Items))),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, loanID)
}

// personQuery loads a borrower row for loan creation. On postgres the row is
// locked FOR UPDATE so concurrent creations for the same person serialize
// before the outstanding-quantity check; the sqlite test driver has a single
// writer and no FOR UPDATE support.
func personQuery(ctx context.Context, tx *gorm.DB, personID uuid.UUID) *gorm.DB {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q.Where("id = ?", personID)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	loan, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	return loan, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Loan, error) {
	out, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loans")
	}
	return out, nil
}

func (s *service) ReturnItem(ctx context.Context, input ReturnItemInput) (*models.Loan, error) {
	if input.LoanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		loan, err := loadActiveLoan(ctx, repo, input.LoanID)
		if err != nil {
			return err
		}

		item, err := repo.FindItem(ctx, input.ItemID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "loan item not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan item")
		}
		if item.LoanID != loan.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item does not belong to loan")
		}

		remaining := item.Remaining()
		if input.Qty > remaining {
			return pkgerrors.New(pkgerrors.CodeReturnQtyTooHigh,
				fmt.Sprintf("cannot return %d: only %d outstanding on this item", input.Qty, remaining)).
				WithDetails(map[string]any{
					"requested": input.Qty,
					"remaining": remaining,
				})
		}

		if err := repo.AddReturnedQty(ctx, item.ID, input.Qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update returned qty")
		}
		if err := s.inventory.Release(ctx, tx, item.BookID, input.Qty); err != nil {
			return err
		}

		// close the loan once nothing is outstanding on any line
		totalRemaining := 0
		for _, li := range loan.Items {
			r := li.Remaining()
			if li.ID == item.ID {
				r -= input.Qty
			}
			totalRemaining += r
		}
		if totalRemaining == 0 {
			if err := repo.MarkReturned(ctx, loan.ID, time.Now().UTC()); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close loan")
			}
		}

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   &input.ActorUserID,
			Action:   enums.AuditActionReturnItem,
			Entity:   enums.AuditEntityLoans,
			EntityID: &loan.ID,
			Details:  audit.Detail(fmt.Sprintf("item %s qty %d", item.ID, input.Qty)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, input.LoanID)
}

func (s *service) ReturnAll(ctx context.Context, input ReturnAllInput) (*models.Loan, error) {
	if input.LoanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		loan, err := loadActiveLoan(ctx, repo, input.LoanID)
		if err != nil {
			return err
		}

		for _, item := range loan.Items {
			remaining := item.Remaining()
			if remaining <= 0 {
				continue
			}
			if err := repo.AddReturnedQty(ctx, item.ID, remaining); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update returned qty")
			}
			if err := s.inventory.Release(ctx, tx, item.BookID, remaining); err != nil {
				return err
			}
		}

		if err := repo.MarkReturned(ctx, loan.ID, time.Now().UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close loan")
		}

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   &input.ActorUserID,
			Action:   enums.AuditActionReturnAll,
			Entity:   enums.AuditEntityLoans,
			EntityID: &loan.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, input.LoanID)
}

func (s *service) Renew(ctx context.Context, input RenewInput) (*models.Loan, error) {
	if input.LoanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	if input.DueDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "due date required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		loan, err := loadActiveLoan(ctx, repo, input.LoanID)
		if err != nil {
			return err
		}

		if err := repo.UpdateDueDate(ctx, loan.ID, input.DueDate.UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update due date")
		}

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   &input.ActorUserID,
			Action:   enums.AuditActionRenew,
			Entity:   enums.AuditEntityLoans,
			EntityID: &loan.ID,
			Details:  audit.Detail("due " + input.DueDate.UTC().Format(time.RFC3339)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, input.LoanID)
}

func loadActiveLoan(ctx context.Context, repo Repository, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := repo.FindByID(ctx, loanID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	if loan.Status != enums.LoanStatusLoaned {
		return nil, pkgerrors.New(pkgerrors.CodeLoanNotActive, "loan is not active")
	}
	return loan, nil
}
