package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/pkg/db/models"
	"github.com/andrepires/biblioteca-backend/pkg/enums"
	pkgerrors "github.com/andrepires/biblioteca-backend/pkg/errors"
)

// Service streams CSV exports of the catalog and loan history.
type Service interface {
	BooksCSV(ctx context.Context, w io.Writer) error
	PeopleCSV(ctx context.Context, w io.Writer) error
	LoansCSV(ctx context.Context, w io.Writer) error
	OverdueCSV(ctx context.Context, w io.Writer) error
}

type service struct {
	db *gorm.DB
}

// NewService builds the report service on the given DB handle.
func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &service{db: db}, nil
}

func (s *service) BooksCSV(ctx context.Context, w io.Writer) error {
	var books []models.Book
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&books).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load books")
	}

	rows := [][]string{{"id", "title", "author", "category", "section", "shelf", "total_qty", "available_qty", "created_at"}}
	for _, b := range books {
		rows = append(rows, []string{
			b.ID.String(),
			b.Title,
			deref(b.Author),
			deref(b.Category),
			deref(b.Section),
			deref(b.Shelf),
			fmt.Sprintf("%d", b.TotalQty),
			fmt.Sprintf("%d", b.AvailableQty),
			b.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return writeAll(w, rows)
}

func (s *service) PeopleCSV(ctx context.Context, w io.Writer) error {
	var people []models.Person
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&people).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load people")
	}

	rows := [][]string{{"id", "name", "phone", "email", "created_at"}}
	for _, p := range people {
		rows = append(rows, []string{
			p.ID.String(),
			p.Name,
			deref(p.Phone),
			deref(p.Email),
			p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return writeAll(w, rows)
}

type loanRow struct {
	ID           uuid.UUID
	PersonName   string
	UserUsername string
	Status       string
	LoanDate     time.Time
	DueDate      *time.Time
	ReturnDate   *time.Time
	Notes        *string
}

func (s *service) LoansCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.loanRows(ctx, false)
	if err != nil {
		return err
	}

	out := [][]string{{"id", "person_name", "user", "status", "loan_date", "due_date", "return_date", "notes"}}
	for _, l := range rows {
		out = append(out, []string{
			l.ID.String(),
			l.PersonName,
			l.UserUsername,
			l.Status,
			l.LoanDate.UTC().Format(time.RFC3339),
			formatTime(l.DueDate),
			formatTime(l.ReturnDate),
			deref(l.Notes),
		})
	}
	return writeAll(w, out)
}

func (s *service) OverdueCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.loanRows(ctx, true)
	if err != nil {
		return err
	}

	out := [][]string{{"id", "person_name", "user", "loan_date", "due_date", "notes"}}
	for _, l := range rows {
		out = append(out, []string{
			l.ID.String(),
			l.PersonName,
			l.UserUsername,
			l.LoanDate.UTC().Format(time.RFC3339),
			formatTime(l.DueDate),
			deref(l.Notes),
		})
	}
	return writeAll(w, out)
}

func (s *service) loanRows(ctx context.Context, overdueOnly bool) ([]loanRow, error) {
	q := s.db.WithContext(ctx).
		Table("loans").
		Select("loans.id, people.name AS person_name, users.username AS user_username, loans.status, loans.loan_date, loans.due_date, loans.return_date, loans.notes").
		Joins("JOIN people ON people.id = loans.person_id").
		Joins("JOIN users ON users.id = loans.user_id")

	if overdueOnly {
		q = q.Where("loans.status = ?", enums.LoanStatusLoaned).
			Where("loans.due_date IS NOT NULL").
			Where("loans.due_date < ?", time.Now().UTC()).
			Order("loans.due_date ASC")
	} else {
		q = q.Order("loans.loan_date DESC")
	}

	var rows []loanRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan report")
	}
	return rows, nil
}

func writeAll(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write csv")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
