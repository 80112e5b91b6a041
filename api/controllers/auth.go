package controllers

import (
	"context"
	"net/http"

	"github.com/identitywear/storefront-backend/api/middleware"
	"github.com/identitywear/storefront-backend/api/responses"
	"github.com/identitywear/storefront-backend/api/validators"
	"github.com/identitywear/storefront-backend/internal/auth"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

// unavailable answers every request with an internal error. Routes use it
// when their service was never wired.
func unavailable(name string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable"))
	}
}

// jsonAction decodes and validates a Req body, runs call and writes its
// result with status.
func jsonAction[Req, Res any](logg *logger.Logger, status int, call func(context.Context, Req) (Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := call(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, res)
	}
}

// AuthSignUp answers 201. With email confirmation on, the session carries
// no tokens and confirmation_required is set.
func AuthSignUp(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("auth", logg)
	}
	return jsonAction(logg, http.StatusCreated, svc.SignUp)
}

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("auth", logg)
	}
	return jsonAction(logg, http.StatusOK, svc.SignIn)
}

func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("auth", logg)
	}
	return jsonAction(logg, http.StatusOK, svc.Refresh)
}

// AuthLogout ends the upstream session and revokes the access token until
// it would have expired anyway.
func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("auth", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := middleware.AccessTokenFromContext(ctx)
		if token == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		if err := svc.SignOut(ctx, token, middleware.AuthSessionFromContext(ctx), middleware.TokenExpiryFromContext(ctx)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
