package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/andrepires/biblioteca-backend/api/routes"
	"github.com/andrepires/biblioteca-backend/internal/audit"
	"github.com/andrepires/biblioteca-backend/internal/auth"
	"github.com/andrepires/biblioteca-backend/internal/books"
	"github.com/andrepires/biblioteca-backend/internal/inventory"
	"github.com/andrepires/biblioteca-backend/internal/loans"
	"github.com/andrepires/biblioteca-backend/internal/people"
	"github.com/andrepires/biblioteca-backend/internal/reports"
	"github.com/andrepires/biblioteca-backend/internal/users"
	"github.com/andrepires/biblioteca-backend/pkg/config"
	"github.com/andrepires/biblioteca-backend/pkg/db"
	"github.com/andrepires/biblioteca-backend/pkg/logger"
	"github.com/andrepires/biblioteca-backend/pkg/metrics"
	"github.com/andrepires/biblioteca-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	recorder := audit.NewRecorder(logg)
	inventorySvc := inventory.NewService()

	usersRepo := users.NewRepository(dbClient.DB())
	booksRepo := books.NewRepository(dbClient.DB())
	peopleRepo := people.NewRepository(dbClient.DB())
	loansRepo := loans.NewRepository(dbClient.DB())
	auditRepo := audit.NewRepository(dbClient.DB())

	authService, err := auth.NewService(usersRepo, dbClient, recorder, cfg.JWT, cfg.Password)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	if cfg.FeatureFlags.SeedDefaultUsers {
		if err := authService.EnsureDefaultUsers(context.Background()); err != nil {
			logg.Error(context.Background(), "failed to seed default users", err)
			os.Exit(1)
		}
	}

	booksService, err := books.NewService(booksRepo, dbClient, inventorySvc, recorder)
	if err != nil {
		logg.Error(context.Background(), "failed to create books service", err)
		os.Exit(1)
	}

	peopleService, err := people.NewService(peopleRepo, dbClient, recorder)
	if err != nil {
		logg.Error(context.Background(), "failed to create people service", err)
		os.Exit(1)
	}

	loansService, err := loans.NewService(loansRepo, dbClient, inventorySvc, recorder, cfg.Loans.MaxActivePerPerson)
	if err != nil {
		logg.Error(context.Background(), "failed to create loans service", err)
		os.Exit(1)
	}

	usersService, err := users.NewService(usersRepo, dbClient, recorder, cfg.Password)
	if err != nil {
		logg.Error(context.Background(), "failed to create users service", err)
		os.Exit(1)
	}

	reportsService, err := reports.NewService(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:      cfg,
		Logger:      logg,
		DBPinger:    dbClient,
		HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),

		Auth:    authService,
		Books:   booksService,
		People:  peopleService,
		Loans:   loansService,
		Users:   usersService,
		Reports: reportsService,
		Audit:   auditRepo,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logg.Info(logg.WithFields(ctx, map[string]any{"signal": sig.String()}), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}
}
