package controllers

import (
	"net/http"

	"github.com/andrepires/biblioteca-backend/api/responses"
	"github.com/andrepires/biblioteca-backend/api/validators"
	authsvc "github.com/andrepires/biblioteca-backend/internal/auth"
	pkgerrors "github.com/andrepires/biblioteca-backend/pkg/errors"
	"github.com/andrepires/biblioteca-backend/pkg/logger"
)

// Login exchanges credentials for an access token.
func Login(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var payload authsvc.LoginInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.Login(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}
