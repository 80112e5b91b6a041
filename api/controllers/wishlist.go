package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/api/middleware"
	"github.com/identitywear/storefront-backend/api/responses"
	"github.com/identitywear/storefront-backend/api/validators"
	"github.com/identitywear/storefront-backend/internal/wishlist"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

// WishlistList returns the signed-in shopper's liked products.
func WishlistList(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("wishlist", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.List(r.Context(), userIDFromRequest(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

// WishlistContains answers whether a product is liked, for the heart toggle.
func WishlistContains(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("wishlist", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		productID := strings.TrimSpace(chi.URLParam(r, "productId"))
		liked, err := svc.Contains(r.Context(), userIDFromRequest(r), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"product_id": productID, "liked": liked})
	}
}

func WishlistAdd(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("wishlist", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var payload wishlist.AddInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Add(r.Context(), userIDFromRequest(r), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func WishlistRemove(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("wishlist", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Remove(r.Context(), userIDFromRequest(r), chi.URLParam(r, "productId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// userIDFromRequest returns nil for guests; services reject a nil user.
func userIDFromRequest(r *http.Request) *uuid.UUID {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
