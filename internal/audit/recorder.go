package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/pkg/db/models"
	"github.com/andrepires/biblioteca-backend/pkg/enums"
	"github.com/andrepires/biblioteca-backend/pkg/logger"
)

// Entry describes one mutating action to append to the trail.
type Entry struct {
	UserID   *uuid.UUID
	Action   enums.AuditAction
	Entity   enums.AuditEntity
	EntityID *uuid.UUID
	Details  *string
}

// Recorder appends audit rows inside the caller's transaction. A failed
// append never fails the caller: the trail is best-effort, the business
// write is not.
type Recorder struct {
	logg *logger.Logger
}

func NewRecorder(logg *logger.Logger) *Recorder {
	return &Recorder{logg: logg}
}

// Record inserts the entry on tx. Insert failures are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, entry Entry) {
	if tx == nil {
		return
	}
	row := models.AuditLog{
		UserID:   entry.UserID,
		Action:   entry.Action,
		Entity:   entry.Entity,
		EntityID: entry.EntityID,
		Details:  entry.Details,
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil && r.logg != nil {
		ctx = r.logg.WithFields(ctx, map[string]any{
			"action": string(entry.Action),
			"entity": string(entry.Entity),
		})
		r.logg.Error(ctx, "audit append failed", err)
	}
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecordInOwnTx opens a transaction just for the entry, for operations with
// no business write of their own. Failures, including begin and commit, are
// logged and swallowed like Record's.
func (r *Recorder) RecordInOwnTx(ctx context.Context, runner txRunner, entry Entry) {
	if runner == nil {
		return
	}
	err := runner.WithTx(ctx, func(tx *gorm.DB) error {
		r.Record(ctx, tx, entry)
		return nil
	})
	if err != nil && r.logg != nil {
		ctx = r.logg.WithFields(ctx, map[string]any{
			"action": string(entry.Action),
			"entity": string(entry.Entity),
		})
		r.logg.Error(ctx, "audit append failed", err)
	}
}

// Detail is a convenience for optional detail strings.
func Detail(s string) *string {
	return &s
}
