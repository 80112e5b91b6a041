package cart

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/identitywear/storefront-backend/api/middleware"
	"github.com/identitywear/storefront-backend/api/responses"
	"github.com/identitywear/storefront-backend/api/validators"
	cartsvc "github.com/identitywear/storefront-backend/internal/cart"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

type cartRegistry interface {
	Get(ctx context.Context, sessionID string) (*cartsvc.Store, error)
}

type productResolver interface {
	Resolve(ctx context.Context, productID, variantID string) (cartsvc.Product, cartsvc.Variant, error)
}

// Fetch returns the cart bound to the request's cart session.
func Fetch(carts cartRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, store, err := loadCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(sessionID, store, cartsvc.Notice{}))
	}
}

// AddItem resolves the variant against the live catalog and adds it.
func AddItem(carts cartRegistry, products productResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if products == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		sessionID, store, err := loadCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Quantity == 0 {
			payload.Quantity = 1
		}

		product, variant, err := products.Resolve(r.Context(), strings.TrimSpace(payload.ProductID), strings.TrimSpace(payload.VariantID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := store.AddItem(r.Context(), product, variant, payload.Quantity, variant.InventoryQuantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(sessionID, store, cartsvc.Notice{}))
	}
}

// UpdateItem sets a line's quantity, clamping to known stock.
func UpdateItem(carts cartRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, store, err := loadCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := variantParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !hasLine(store, variantID) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart"))
			return
		}

		notice := store.UpdateQuantity(r.Context(), variantID, *payload.Quantity)
		responses.WriteSuccess(w, newCartResponse(sessionID, store, notice))
	}
}

// RemoveItem drops a line. Removing an absent line is not an error.
func RemoveItem(carts cartRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, store, err := loadCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := variantParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		store.RemoveItem(r.Context(), variantID)
		responses.WriteSuccess(w, newCartResponse(sessionID, store, cartsvc.Notice{}))
	}
}

// Clear empties the cart.
func Clear(carts cartRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, store, err := loadCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store.Clear(r.Context())
		responses.WriteNoContent(w)
	}
}

func loadCart(r *http.Request, carts cartRegistry) (string, *cartsvc.Store, error) {
	if carts == nil {
		return "", nil, pkgerrors.New(pkgerrors.CodeInternal, "cart registry unavailable")
	}
	sessionID := middleware.CartSessionFromContext(r.Context())
	if sessionID == "" {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "cart session missing")
	}
	store, err := carts.Get(r.Context(), sessionID)
	if err != nil {
		return "", nil, err
	}
	return sessionID, store, nil
}

func variantParam(r *http.Request) (string, error) {
	variantID := strings.TrimSpace(chi.URLParam(r, "variantId"))
	if variantID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	return variantID, nil
}

func hasLine(store *cartsvc.Store, variantID string) bool {
	for _, item := range store.Items() {
		if item.Variant.ID == variantID {
			return true
		}
	}
	return false
}
