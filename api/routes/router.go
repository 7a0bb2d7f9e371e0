package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andrepires/biblioteca-backend/api/controllers"
	"github.com/andrepires/biblioteca-backend/api/middleware"
	auditsvc "github.com/andrepires/biblioteca-backend/internal/audit"
	authsvc "github.com/andrepires/biblioteca-backend/internal/auth"
	booksvc "github.com/andrepires/biblioteca-backend/internal/books"
	loansvc "github.com/andrepires/biblioteca-backend/internal/loans"
	peoplesvc "github.com/andrepires/biblioteca-backend/internal/people"
	reportsvc "github.com/andrepires/biblioteca-backend/internal/reports"
	usersvc "github.com/andrepires/biblioteca-backend/internal/users"
	"github.com/andrepires/biblioteca-backend/pkg/config"
	"github.com/andrepires/biblioteca-backend/pkg/db"
	"github.com/andrepires/biblioteca-backend/pkg/enums"
	"github.com/andrepires/biblioteca-backend/pkg/logger"
	"github.com/andrepires/biblioteca-backend/pkg/metrics"
)

// Deps bundles everything the router wires together.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DBPinger    db.Pinger
	HTTPMetrics *metrics.HTTPMetrics

	Auth    authsvc.Service
	Books   booksvc.Service
	People  peoplesvc.Service
	Loans   loansvc.Service
	Users   usersvc.Service
	Reports reportsvc.Service
	Audit   auditsvc.Repository
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)
	if d.HTTPMetrics != nil {
		r.Use(d.HTTPMetrics.Middleware)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, d.DBPinger, logg))
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/login", controllers.Login(d.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/me", controllers.Me(d.Users, logg))
		r.Post("/me/change-password", controllers.ChangePassword(d.Users, logg))

		r.Route("/people", func(r chi.Router) {
			r.Get("/", controllers.ListPeople(d.People, logg))
			r.Post("/", controllers.CreatePerson(d.People, logg))
			r.Get("/{id}", controllers.GetPerson(d.People, logg))
			r.Put("/{id}", controllers.UpdatePerson(d.People, logg))
			r.Delete("/{id}", controllers.DeletePerson(d.People, logg))
		})

		r.Route("/books", func(r chi.Router) {
			r.Get("/", controllers.ListBooks(d.Books, logg))
			r.Post("/", controllers.CreateBook(d.Books, logg))
			r.Get("/{id}", controllers.GetBook(d.Books, logg))
			r.Put("/{id}", controllers.UpdateBook(d.Books, logg))
			r.Post("/{id}/adjust-stock", controllers.AdjustBookStock(d.Books, logg))
			r.Delete("/{id}", controllers.DeleteBook(d.Books, logg))
		})

		r.Route("/loans", func(r chi.Router) {
			r.Get("/", controllers.ListLoans(d.Loans, logg))
			r.Post("/", controllers.CreateLoan(d.Loans, logg))
			r.Get("/{id}", controllers.GetLoan(d.Loans, logg))
			r.Post("/{id}/return-item", controllers.ReturnLoanItem(d.Loans, logg))
			r.Post("/{id}/return", controllers.ReturnLoan(d.Loans, logg))
			r.Post("/{id}/renew", controllers.RenewLoan(d.Loans, logg))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/books.csv", controllers.BooksReport(d.Reports, logg))
			r.Get("/people.csv", controllers.PeopleReport(d.Reports, logg))
			r.Get("/loans.csv", controllers.LoansReport(d.Reports, logg))
			r.Get("/overdue.csv", controllers.OverdueReport(d.Reports, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", controllers.ListUsers(d.Users, logg))
				r.Post("/", controllers.CreateUser(d.Users, logg))
				r.Post("/{id}/reset-password", controllers.ResetUserPassword(d.Users, logg))
				r.Post("/{id}/role", controllers.SetUserRole(d.Users, logg))
				r.Delete("/{id}", controllers.DeleteUser(d.Users, logg))
			})

			r.Get("/audit", controllers.ListAudit(d.Audit, logg))
		})
	})

	return r
}
