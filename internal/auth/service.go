package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/internal/audit"
	"github.com/andrepires/biblioteca-backend/internal/users"
	pkgauth "github.com/andrepires/biblioteca-backend/pkg/auth"
	"github.com/andrepires/biblioteca-backend/pkg/config"
	"github.com/andrepires/biblioteca-backend/pkg/db/models"
	"github.com/andrepires/biblioteca-backend/pkg/enums"
	pkgerrors "github.com/andrepires/biblioteca-backend/pkg/errors"
	"github.com/andrepires/biblioteca-backend/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LoginInput carries the credentials presented at login.
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginOutput bundles the minted token with the authenticated user.
type LoginOutput struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Service authenticates staff and mints access tokens.
type Service interface {
	Login(ctx context.Context, input LoginInput) (*LoginOutput, error)
	EnsureDefaultUsers(ctx context.Context) error
}

type service struct {
	usersRepo   users.Repository
	tx          txRunner
	recorder    *audit.Recorder
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
}

// NewService builds the auth service.
func NewService(usersRepo users.Repository, tx txRunner, recorder *audit.Recorder, jwtCfg config.JWTConfig, passwordCfg config.PasswordConfig) (Service, error) {
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if jwtCfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	return &service{
		usersRepo:   usersRepo,
		tx:          tx,
		recorder:    recorder,
		jwtCfg:      jwtCfg,
		passwordCfg: passwordCfg,
	}, nil
}

func (s *service) Login(ctx context.Context, input LoginInput) (*LoginOutput, error) {
	username := strings.TrimSpace(strings.ToLower(input.Username))
	if username == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username and password required")
	}

	user, err := s.usersRepo.FindByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// same message as a bad password so usernames cannot be probed
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	token, err := pkgauth.MintAccessToken(s.jwtCfg, time.Now().UTC(), pkgauth.AccessTokenPayload{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint token")
	}

	// the trail has no business write alongside it here and must never
	// block a login
	s.recorder.RecordInOwnTx(ctx, s.tx, audit.Entry{
		UserID: &user.ID,
		Action: enums.AuditActionLogin,
		Entity: enums.AuditEntityAuth,
	})

	return &LoginOutput{Token: token, User: user}, nil
}

// EnsureDefaultUsers seeds an admin and a staff account when the users table
// is empty, so a fresh install is immediately usable. Passwords are meant to
// be rotated on first login.
func (s *service) EnsureDefaultUsers(ctx context.Context) error {
	count, err := s.usersRepo.Count(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count users")
	}
	if count > 0 {
		return nil
	}

	defaults := []struct {
		username string
		password string
		role     enums.UserRole
	}{
		{"admin", "admin123", enums.UserRoleAdmin},
		{"bibliotecario", "staff123", enums.UserRoleStaff},
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.usersRepo.WithTx(tx)
		for _, d := range defaults {
			hash, err := security.HashPassword(d.password, s.passwordCfg)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash default password")
			}
			user := models.User{Username: d.username, PasswordHash: hash, Role: d.role}
			if _, err := repo.Create(ctx, &user); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed default user")
			}
		}
		return nil
	})
}
