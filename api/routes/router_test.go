package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andrepires/biblioteca-backend/internal/audit"
	"github.com/andrepires/biblioteca-backend/internal/auth"
	"github.com/andrepires/biblioteca-backend/internal/books"
	"github.com/andrepires/biblioteca-backend/internal/inventory"
	"github.com/andrepires/biblioteca-backend/internal/loans"
	"github.com/andrepires/biblioteca-backend/internal/people"
	"github.com/andrepires/biblioteca-backend/internal/reports"
	"github.com/andrepires/biblioteca-backend/internal/users"
	"github.com/andrepires/biblioteca-backend/pkg/config"
	"github.com/andrepires/biblioteca-backend/pkg/db/models"
	"github.com/andrepires/biblioteca-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Env:  "test",
			Port: "0",
		},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "biblioteca",
			ExpirationMinutes: 60,
		},
		Password: config.PasswordConfig{
			ArgonMemoryKB:    8 * 1024,
			ArgonTime:        1,
			ArgonParallelism: 1,
			ArgonSaltLen:     16,
			ArgonKeyLen:      16,
			MinLength:        6,
		},
		Loans: config.LoanConfig{MaxActivePerPerson: 3},
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	dsn := "file:routes_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = gdb.AutoMigrate(
		&models.User{},
		&models.Person{},
		&models.Book{},
		&models.Loan{},
		&models.LoanItem{},
		&models.AuditLog{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "routes-test", Level: logger.ParseLevel("error")})
	tx := gormTxRunner{db: gdb}
	recorder := audit.NewRecorder(logg)
	inventorySvc := inventory.NewService()

	usersRepo := users.NewRepository(gdb)

	authService, err := auth.NewService(usersRepo, tx, recorder, cfg.JWT, cfg.Password)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	if err := authService.EnsureDefaultUsers(context.Background()); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	booksService, err := books.NewService(books.NewRepository(gdb), tx, inventorySvc, recorder)
	if err != nil {
		t.Fatalf("books service: %v", err)
	}
	peopleService, err := people.NewService(people.NewRepository(gdb), tx, recorder)
	if err != nil {
		t.Fatalf("people service: %v", err)
	}
	loansService, err := loans.NewService(loans.NewRepository(gdb), tx, inventorySvc, recorder, cfg.Loans.MaxActivePerPerson)
	if err != nil {
		t.Fatalf("loans service: %v", err)
	}
	usersService, err := users.NewService(usersRepo, tx, recorder, cfg.Password)
	if err != nil {
		t.Fatalf("users service: %v", err)
	}
	reportsService, err := reports.NewService(gdb)
	if err != nil {
		t.Fatalf("reports service: %v", err)
	}

	return NewRouter(Deps{
		Config:   cfg,
		Logger:   logg,
		DBPinger: stubPinger{},

		Auth:    authService,
		Books:   booksService,
		People:  peopleService,
		Loans:   loansService,
		Users:   usersService,
		Reports: reportsService,
		Audit:   audit.NewRepository(gdb),
	})
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, resp.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("decode data: %v (body %s)", err, resp.Body.String())
	}
}

func decodeErrorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (body %s)", err, resp.Body.String())
	}
	return envelope.Error.Code
}

func login(t *testing.T, router http.Handler, username, password string) string {
	t.Helper()
	resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("login %s: status %d (body %s)", username, resp.Code, resp.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	decodeData(t, resp, &out)
	if out.Token == "" {
		t.Fatal("expected a token")
	}
	return out.Token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t)

	resp := doJSON(t, router, http.MethodGet, "/health/live", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status %d", resp.Code)
	}
	if got := resp.Header().Get("X-Biblioteca-Env"); got != "test" {
		t.Fatalf("env header %q", got)
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	resp := doJSON(t, router, http.MethodGet, "/api/v1/books", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != "UNAUTHORIZED" {
		t.Fatalf("error code %q", code)
	}
}

func TestAdminRoutesRejectStaff(t *testing.T) {
	router := newTestRouter(t)
	staffToken := login(t, router, "bibliotecario", "staff123")
	adminToken := login(t, router, "admin", "admin123")

	resp := doJSON(t, router, http.MethodGet, "/api/v1/users", staffToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("staff status %d", resp.Code)
	}

	resp = doJSON(t, router, http.MethodGet, "/api/v1/users", adminToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("admin status %d (body %s)", resp.Code, resp.Body.String())
	}
	var list []models.User
	decodeData(t, resp, &list)
	if len(list) != 2 {
		t.Fatalf("expected the seeded accounts, got %d", len(list))
	}
}

func TestLoanLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, "admin", "admin123")

	resp := doJSON(t, router, http.MethodPost, "/api/v1/people", token, map[string]any{
		"name":  "Rita Gomes",
		"email": "rita@example.com",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create person: status %d (body %s)", resp.Code, resp.Body.String())
	}
	var person models.Person
	decodeData(t, resp, &person)

	resp = doJSON(t, router, http.MethodPost, "/api/v1/books", token, map[string]any{
		"title":       "O Alienista",
		"author":      "Machado de Assis",
		"initial_qty": 2,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create book: status %d (body %s)", resp.Code, resp.Body.String())
	}
	var book models.Book
	decodeData(t, resp, &book)

	due := time.Now().UTC().Add(7 * 24 * time.Hour)
	resp = doJSON(t, router, http.MethodPost, "/api/v1/loans", token, map[string]any{
		"person_id": person.ID,
		"due_date":  due.Format(time.RFC3339),
		"items": []map[string]any{
			{"book_id": book.ID, "qty": 1},
		},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create loan: status %d (body %s)", resp.Code, resp.Body.String())
	}
	var loan models.Loan
	decodeData(t, resp, &loan)
	if len(loan.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(loan.Items))
	}

	resp = doJSON(t, router, http.MethodGet, "/api/v1/books/"+book.ID.String(), token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get book: status %d", resp.Code)
	}
	decodeData(t, resp, &book)
	if book.AvailableQty != 1 {
		t.Fatalf("available after loan = %d, want 1", book.AvailableQty)
	}

	resp = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/loans/%s/return", loan.ID), token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("return loan: status %d (body %s)", resp.Code, resp.Body.String())
	}
	decodeData(t, resp, &loan)
	if loan.Status != "RETURNED" {
		t.Fatalf("status %q after return", loan.Status)
	}

	resp = doJSON(t, router, http.MethodGet, "/api/v1/books/"+book.ID.String(), token, nil)
	decodeData(t, resp, &book)
	if book.AvailableQty != 2 {
		t.Fatalf("available after return = %d, want 2", book.AvailableQty)
	}
}

func TestReportsReturnCSV(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, "admin", "admin123")

	resp := doJSON(t, router, http.MethodPost, "/api/v1/books", token, map[string]any{
		"title":       "Ensaio Sobre a Cegueira",
		"initial_qty": 1,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create book: status %d", resp.Code)
	}

	resp = doJSON(t, router, http.MethodGet, "/api/v1/reports/books.csv", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status %d (body %s)", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type %q", ct)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "Ensaio Sobre a Cegueira") {
		t.Fatalf("csv missing book row: %s", body)
	}
}

func TestAuditTrailIsAdminOnly(t *testing.T) {
	router := newTestRouter(t)
	staffToken := login(t, router, "bibliotecario", "staff123")
	adminToken := login(t, router, "admin", "admin123")

	resp := doJSON(t, router, http.MethodGet, "/api/v1/audit", staffToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("staff status %d", resp.Code)
	}

	resp = doJSON(t, router, http.MethodGet, "/api/v1/audit", adminToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("admin status %d (body %s)", resp.Code, resp.Body.String())
	}
	var rows []audit.Row
	decodeData(t, resp, &rows)
	// both logins above were recorded
	if len(rows) < 2 {
		t.Fatalf("expected login audit rows, got %d", len(rows))
	}
}
