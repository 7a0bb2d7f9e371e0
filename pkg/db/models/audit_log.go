package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/pkg/enums"
)

// AuditLog is an append-only record of a mutating action. Rows are never
// updated or deleted.
type AuditLog struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    *uuid.UUID        `gorm:"column:user_id;type:uuid;index" json:"user_id,omitempty"`
	Action    enums.AuditAction `gorm:"column:action;not null" json:"action"`
	Entity    enums.AuditEntity `gorm:"column:entity;not null" json:"entity"`
	EntityID  *uuid.UUID        `gorm:"column:entity_id;type:uuid" json:"entity_id,omitempty"`
	Details   *string           `gorm:"column:details" json:"details,omitempty"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
