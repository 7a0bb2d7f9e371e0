package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/pkg/db/models"
	pkgerrors "github.com/andrepires/biblioteca-backend/pkg/errors"
)

// Service owns the stock ledger on books. All methods run on the caller's
// transaction so ledger moves commit or roll back together with the business
// write that caused them.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, bookID uuid.UUID, qty int) error
	Release(ctx context.Context, tx *gorm.DB, bookID uuid.UUID, qty int) error
	AdjustStock(ctx context.Context, tx *gorm.DB, bookID uuid.UUID, delta int) (*models.Book, error)
}

type service struct{}

// NewService builds the stock ledger service.
func NewService() Service {
	return &service{}
}

// Reserve decrements available_qty by qty. The guard condition in the UPDATE
// makes concurrent reservations safe without an explicit row lock: a stale
// read can never drive available_qty negative.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, bookID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if bookID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive")
	}

	res := tx.WithContext(ctx).Exec(
		`UPDATE books
		    SET available_qty = available_qty - ?, updated_at = CURRENT_TIMESTAMP
		  WHERE id = ? AND deleted_at IS NULL AND available_qty >= ?`,
		qty, bookID, qty,
	)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	if res.RowsAffected == 0 {
		var book models.Book
		err := tx.WithContext(ctx).Where("id = ?", bookID).First(&book).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
		}
		return pkgerrors.New(pkgerrors.CodeInsufficientStock,
			fmt.Sprintf("insufficient stock for %q: requested %d, available %d", book.Title, qty, book.AvailableQty)).
			WithDetails(map[string]any{
				"book_id":   book.ID,
				"requested": qty,
				"available": book.AvailableQty,
			})
	}
	return nil
}

// Release returns qty units to available_qty, capped at total_qty so repeated
// releases cannot push availability above the owned total.
func (s *service) Release(ctx context.Context, tx *gorm.DB, bookID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if bookID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive")
	}

	// CASE instead of LEAST so the statement runs on both postgres and the
	// sqlite test databases.
	res := tx.WithContext(ctx).Exec(
		`UPDATE books
		    SET available_qty = CASE
		          WHEN available_qty + ? > total_qty THEN total_qty
		          ELSE available_qty + ?
		        END,
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = ? AND deleted_at IS NULL`,
		qty, qty, bookID,
	)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}
	return nil
}

// AdjustStock applies a signed delta to total_qty and recomputes availability
// so outstanding loans are preserved: borrowed units stay borrowed, only free
// stock shrinks or grows. Both counters clamp at zero.
func (s *service) AdjustStock(ctx context.Context, tx *gorm.DB, bookID uuid.UUID, delta int) (*models.Book, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}

	// One arithmetic statement instead of read-then-write: every column
	// reference evaluates against the row version the UPDATE locks, so a
	// reservation committed by another transaction is never erased. The
	// clamped new total is max(0, total+delta); availability is that total
	// minus the borrowed count (total - available), floored at zero. CASE
	// keeps the statement portable to the sqlite test databases.
	res := tx.WithContext(ctx).Exec(
		`UPDATE books
		    SET total_qty = CASE WHEN total_qty + ? < 0 THEN 0 ELSE total_qty + ? END,
		        available_qty = CASE
		          WHEN (CASE WHEN total_qty + ? < 0 THEN 0 ELSE total_qty + ? END) - (total_qty - available_qty) < 0 THEN 0
		          ELSE (CASE WHEN total_qty + ? < 0 THEN 0 ELSE total_qty + ? END) - (total_qty - available_qty)
		        END,
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = ? AND deleted_at IS NULL`,
		delta, delta, delta, delta, delta, delta, bookID,
	)
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "adjust stock")
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}

	var book models.Book
	if err := tx.WithContext(ctx).Where("id = ?", bookID).First(&book).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
	}
	return &book, nil
}
