package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/pkg/db/models"
	"github.com/andrepires/biblioteca-backend/pkg/enums"
)

func TestRecordAndList(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	user := models.User{Username: "bibliotecaria", PasswordHash: "x", Role: enums.UserRoleAdmin}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	rec := NewRecorder(nil)
	bookID := uuid.New()
	rec.Record(ctx, db, Entry{
		UserID:   &user.ID,
		Action:   enums.AuditActionCreate,
		Entity:   enums.AuditEntityBooks,
		EntityID: &bookID,
		Details:  Detail("Dom Casmurro"),
	})
	rec.Record(ctx, db, Entry{
		UserID: &user.ID,
		Action: enums.AuditActionLogin,
		Entity: enums.AuditEntityAuth,
	})

	repo := NewRepository(db)
	rows, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Username == nil || *row.Username != "bibliotecaria" {
			t.Fatalf("expected username join, got %+v", row)
		}
	}

	rows, err = repo.List(ctx, ListFilter{Entity: string(enums.AuditEntityBooks)})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Action != string(enums.AuditActionCreate) {
		t.Fatalf("unexpected action %q", rows[0].Action)
	}
	if rows[0].Details == nil || *rows[0].Details != "Dom Casmurro" {
		t.Fatalf("unexpected details %+v", rows[0].Details)
	}
}

func TestRecordSurvivesMissingUser(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	rec := NewRecorder(nil)
	rec.Record(ctx, db, Entry{
		Action: enums.AuditActionResetPassword,
		Entity: enums.AuditEntityUsers,
	})

	rows, err := NewRepository(db).List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].UserID != nil || rows[0].Username != nil {
		t.Fatalf("expected anonymous entry, got %+v", rows[0])
	}
}

type dbTxRunner struct {
	db *gorm.DB
}

func (d dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.db.WithContext(ctx).Transaction(fn)
}

type deadTxRunner struct{}

func (deadTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return errors.New("begin tx: connection reset")
}

func TestRecordInOwnTx(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	rec := NewRecorder(nil)
	rec.RecordInOwnTx(ctx, dbTxRunner{db: db}, Entry{
		Action: enums.AuditActionLogin,
		Entity: enums.AuditEntityAuth,
	})

	rows, err := NewRepository(db).List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	// a dead transaction runner is swallowed like a failed insert
	rec.RecordInOwnTx(ctx, deadTxRunner{}, Entry{
		Action: enums.AuditActionLogin,
		Entity: enums.AuditEntityAuth,
	})
	rec.RecordInOwnTx(ctx, nil, Entry{
		Action: enums.AuditActionLogin,
		Entity: enums.AuditEntityAuth,
	})

	rows, err = NewRepository(db).List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list after failures: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the trail unchanged, got %d rows", len(rows))
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:audit_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
