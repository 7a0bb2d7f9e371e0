package controllers

import (
	"net/http"
	"strings"

	"github.com/andrepires/biblioteca-backend/api/responses"
	"github.com/andrepires/biblioteca-backend/api/validators"
	auditsvc "github.com/andrepires/biblioteca-backend/internal/audit"
	"github.com/andrepires/biblioteca-backend/pkg/logger"
)

// ListAudit exposes the audit trail to admins.
func ListAudit(repo auditsvc.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := repo.List(r.Context(), auditsvc.ListFilter{
			Entity: strings.TrimSpace(r.URL.Query().Get("entity")),
			Action: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("action"))),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}
