package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/internal/audit"
	"github.com/andrepires/biblioteca-backend/pkg/config"
	"github.com/andrepires/biblioteca-backend/pkg/db"
	"github.com/andrepires/biblioteca-backend/pkg/db/models"
	"github.com/andrepires/biblioteca-backend/pkg/enums"
	pkgerrors "github.com/andrepires/biblioteca-backend/pkg/errors"
	"github.com/andrepires/biblioteca-backend/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput carries a new staff account.
type CreateInput struct {
	Username    string         `json:"username" validate:"required,min=3"`
	Password    string         `json:"password" validate:"required"`
	Role        enums.UserRole `json:"role" validate:"required"`
	ActorUserID uuid.UUID      `json:"-"`
}

// Service manages staff accounts.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	ResetPassword(ctx context.Context, id uuid.UUID, newPassword string, actorUserID uuid.UUID) error
	SetRole(ctx context.Context, id uuid.UUID, role enums.UserRole, actorUserID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID, actorUserID uuid.UUID) error
	ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error
}

type service struct {
	repo        Repository
	tx          txRunner
	recorder    *audit.Recorder
	passwordCfg config.PasswordConfig
}

// NewService builds the staff account service.
func NewService(repo Repository, tx txRunner, recorder *audit.Recorder, passwordCfg config.PasswordConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{repo: repo, tx: tx, recorder: recorder, passwordCfg: passwordCfg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.User, error) {
	username := strings.TrimSpace(strings.ToLower(input.Username))
	if len(username) < 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username must have at least 3 characters")
	}
	if !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if err := s.checkPasswordPolicy(input.Password); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(input.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *models.User
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindByUsername(ctx, username); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "username already taken")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check username")
		}

		user := models.User{Username: username, PasswordHash: hash, Role: input.Role}
		out, err := repo.Create(ctx, &user)
		if err != nil {
			if db.IsUniqueViolation(err, "uq_users_username") {
				return pkgerrors.New(pkgerrors.CodeConflict, "username already taken")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}
		created = out

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   actorRef(input.ActorUserID),
			Action:   enums.AuditActionCreate,
			Entity:   enums.AuditEntityUsers,
			EntityID: &out.ID,
			Details:  audit.Detail(username),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) List(ctx context.Context) ([]models.User, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	return out, nil
}

func (s *service) ResetPassword(ctx context.Context, id uuid.UUID, newPassword string, actorUserID uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if err := s.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	hash, err := security.HashPassword(newPassword, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindByID(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		if err := repo.UpdatePasswordHash(ctx, id, hash); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update password")
		}

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   actorRef(actorUserID),
			Action:   enums.AuditActionResetPassword,
			Entity:   enums.AuditEntityUsers,
			EntityID: &id,
		})
		return nil
	})
}

func (s *service) SetRole(ctx context.Context, id uuid.UUID, role enums.UserRole, actorUserID uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if id == actorUserID {
		return pkgerrors.New(pkgerrors.CodeConflict, "cannot change your own role")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		user, err := repo.FindByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		if user.Role == role {
			return nil
		}
		if err := repo.UpdateRole(ctx, id, role); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update role")
		}

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   actorRef(actorUserID),
			Action:   enums.AuditActionSetRole,
			Entity:   enums.AuditEntityUsers,
			EntityID: &id,
			Details:  audit.Detail(string(role)),
		})
		return nil
	})
}

func (s *service) Delete(ctx context.Context, id uuid.UUID, actorUserID uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if id == actorUserID {
		return pkgerrors.New(pkgerrors.CodeConflict, "cannot delete your own account")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		user, err := repo.FindByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}

		hasHistory, err := repo.HasLoanHistory(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check loan history")
		}
		if hasHistory {
			return pkgerrors.New(pkgerrors.CodeConflict, "user has loan history and cannot be deleted")
		}

		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete user")
		}

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   actorRef(actorUserID),
			Action:   enums.AuditActionDelete,
			Entity:   enums.AuditEntityUsers,
			EntityID: &id,
			Details:  audit.Detail(user.Username),
		})
		return nil
	})
}

func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := s.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		user, err := repo.FindByID(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}

		ok, err := security.VerifyPassword(currentPassword, user.PasswordHash)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "current password is incorrect")
		}

		hash, err := security.HashPassword(newPassword, s.passwordCfg)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
		}
		if err := repo.UpdatePasswordHash(ctx, userID, hash); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update password")
		}

		s.recorder.Record(ctx, tx, audit.Entry{
			UserID:   &userID,
			Action:   enums.AuditActionChangePassword,
			Entity:   enums.AuditEntityUsers,
			EntityID: &userID,
		})
		return nil
	})
}

func (s *service) checkPasswordPolicy(password string) error {
	min := s.passwordCfg.MinLength
	if min <= 0 {
		min = 6
	}
	if len(password) < min {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("password must have at least %d characters", min))
	}
	return nil
}

func actorRef(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
