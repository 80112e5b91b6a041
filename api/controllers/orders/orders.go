package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/api/middleware"
	"github.com/identitywear/storefront-backend/api/responses"
	"github.com/identitywear/storefront-backend/api/validators"
	internalorders "github.com/identitywear/storefront-backend/internal/orders"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
	"github.com/identitywear/storefront-backend/pkg/pagination"
)

var errServiceMissing = pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable")

// List pages through the signed-in shopper's orders, newest first. The
// cursor is the opaque next_cursor of the previous page.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := listPage(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func listPage(r *http.Request, svc internalorders.Service) (internalorders.OrderPage, error) {
	if svc == nil {
		return internalorders.OrderPage{}, errServiceMissing
	}
	owner := signedInUser(r)
	if owner == nil {
		return internalorders.OrderPage{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to view orders")
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return internalorders.OrderPage{}, err
	}
	return svc.ListForUser(r.Context(), *owner, pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	})
}

// Detail serves guest orders to anyone holding the id. An order placed
// while signed in is only shown to its owner.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errServiceMissing)
			return
		}
		orderID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "orderId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}
		order, err := svc.Get(r.Context(), orderID, signedInUser(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// signedInUser is nil for guests and for a subject that is not a user id.
func signedInUser(r *http.Request) *uuid.UUID {
	id, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return nil
	}
	return &id
}
