package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/andrepires/biblioteca-backend/pkg/errors"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Row is an audit entry joined with the acting user's name.
type Row struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Username  *string    `json:"username,omitempty"`
	Action    string     `json:"action"`
	Entity    string     `json:"entity"`
	EntityID  *uuid.UUID `json:"entity_id,omitempty"`
	Details   *string    `json:"details,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ListFilter narrows the audit listing.
type ListFilter struct {
	Entity string
	Action string
	Limit  int
	Offset int
}

// Repository reads the audit trail.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Row, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Row, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := r.db.WithContext(ctx).
		Table("audit_logs").
		Select("audit_logs.id, audit_logs.user_id, users.username AS username, audit_logs.action, audit_logs.entity, audit_logs.entity_id, audit_logs.details, audit_logs.created_at").
		Joins("LEFT JOIN users ON users.id = audit_logs.user_id").
		Order("audit_logs.created_at DESC").
		Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Entity != "" {
		q = q.Where("audit_logs.entity = ?", filter.Entity)
	}
	if filter.Action != "" {
		q = q.Where("audit_logs.action = ?", filter.Action)
	}

	var rows []Row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit entries")
	}
	return rows, nil
}
