package controllers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/andrepires/biblioteca-backend/api/responses"
	reportsvc "github.com/andrepires/biblioteca-backend/internal/reports"
	"github.com/andrepires/biblioteca-backend/pkg/logger"
)

func BooksReport(svc reportsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return csvReport("books.csv", svc.BooksCSV, logg)
}

func PeopleReport(svc reportsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return csvReport("people.csv", svc.PeopleCSV, logg)
}

func LoansReport(svc reportsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return csvReport("loans.csv", svc.LoansCSV, logg)
}

func OverdueReport(svc reportsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return csvReport("overdue.csv", svc.OverdueCSV, logg)
}

func csvReport(filename string, write func(context.Context, io.Writer) error, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		// rows are buffered until the report query succeeds, so a failure
		// here can still produce a clean JSON error response
		if err := write(r.Context(), w); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}
