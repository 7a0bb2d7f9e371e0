package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
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

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret-at-least-32-bytes-long!!",
		Issuer:            "biblioteca",
		ExpirationMinutes: 30,
	}
}

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    8 * 1024,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      16,
		MinLength:        6,
	}
}

func newTestService(t *testing.T) (Service, users.Service, *gorm.DB) {
	t.Helper()
	dsn := "file:auth_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(&models.User{}, &models.Loan{}, &models.AuditLog{})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := users.NewRepository(db)
	runner := gormTxRunner{db: db}
	recorder := audit.NewRecorder(nil)

	usersSvc, err := users.NewService(repo, runner, recorder, testPasswordConfig())
	if err != nil {
		t.Fatalf("build users service: %v", err)
	}
	svc, err := NewService(repo, runner, recorder, testJWTConfig(), testPasswordConfig())
	if err != nil {
		t.Fatalf("build auth service: %v", err)
	}
	return svc, usersSvc, db
}

func TestLogin(t *testing.T) {
	t.Parallel()

	svc, usersSvc, db := newTestService(t)
	ctx := context.Background()

	user, err := usersSvc.Create(ctx, users.CreateInput{
		Username: "carla", Password: "secret1", Role: enums.UserRoleStaff,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	out, err := svc.Login(ctx, LoginInput{Username: " Carla ", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if out.User.ID != user.ID {
		t.Fatalf("unexpected user: %+v", out.User)
	}

	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), out.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Role != enums.UserRoleStaff || claims.Username != "carla" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	var count int64
	err = db.Model(&models.AuditLog{}).
		Where("action = ?", enums.AuditActionLogin).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 login audit entry, got %d", count)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	svc, usersSvc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := usersSvc.Create(ctx, users.CreateInput{
		Username: "carla", Password: "secret1", Role: enums.UserRoleStaff,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	// unknown user and wrong password fail identically
	for _, input := range []LoginInput{
		{Username: "nobody", Password: "secret1"},
		{Username: "carla", Password: "wrong"},
	} {
		_, err := svc.Login(ctx, input)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
			t.Fatalf("expected unauthorized for %+v, got %v", input, err)
		}
		if typed.Message() != "invalid credentials" {
			t.Fatalf("credential failures must not be distinguishable, got %q", typed.Message())
		}
	}
}

type failingTxRunner struct{}

func (failingTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return errors.New("begin tx: connection reset")
}

func TestLoginSucceedsWhenAuditTxFails(t *testing.T) {
	t.Parallel()

	dsn := "file:auth_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	hash, err := security.HashPassword("secret1", testPasswordConfig())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := models.User{Username: "carla", PasswordHash: hash, Role: enums.UserRoleStaff}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	svc, err := NewService(users.NewRepository(db), failingTxRunner{}, audit.NewRecorder(nil), testJWTConfig(), testPasswordConfig())
	if err != nil {
		t.Fatalf("build auth service: %v", err)
	}

	// the trail write is best effort; a dead transaction runner must not
	// block the login itself
	out, err := svc.Login(context.Background(), LoginInput{Username: "carla", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if out.Token == "" || out.User.ID != user.ID {
		t.Fatalf("unexpected login output: %+v", out)
	}
}

func TestEnsureDefaultUsers(t *testing.T) {
	t.Parallel()

	svc, _, db := newTestService(t)
	ctx := context.Background()

	if err := svc.EnsureDefaultUsers(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var seeded []models.User
	if err := db.Order("username ASC").Find(&seeded).Error; err != nil {
		t.Fatalf("load users: %v", err)
	}
	if len(seeded) != 2 {
		t.Fatalf("expected 2 seeded users, got %d", len(seeded))
	}
	if seeded[0].Username != "admin" || seeded[0].Role != enums.UserRoleAdmin {
		t.Fatalf("unexpected admin: %+v", seeded[0])
	}
	if seeded[1].Username != "bibliotecario" || seeded[1].Role != enums.UserRoleStaff {
		t.Fatalf("unexpected staff: %+v", seeded[1])
	}

	// idempotent on a populated table
	if err := svc.EnsureDefaultUsers(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 users after reseed, got %d", count)
	}

	if _, err := svc.Login(ctx, LoginInput{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login as seeded admin: %v", err)
	}
}
