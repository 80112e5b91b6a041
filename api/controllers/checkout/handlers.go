package checkout

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/api/middleware"
	"github.com/identitywear/storefront-backend/api/responses"
	"github.com/identitywear/storefront-backend/api/validators"
	checkoutsvc "github.com/identitywear/storefront-backend/internal/checkout"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
	"github.com/identitywear/storefront-backend/pkg/types"
)

type shippingRequest struct {
	OptionID string `json:"option_id" validate:"required"`
}

type submitRequest struct {
	Email         string                 `json:"email"`
	Address       *types.ShippingAddress `json:"address,omitempty"`
	PaymentMethod string                 `json:"payment_method" validate:"omitempty,oneof=stripe"`
}

type quickRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

type verifyRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// State returns the checkout snapshot for the cart session.
func State(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := sessionKey(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := svc.State(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

// UpdateAddress stores the shipping form and schedules a debounced rate lookup.
func UpdateAddress(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := sessionKey(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload types.ShippingAddress
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := svc.UpdateAddress(r.Context(), key, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

// Refresh runs validation and rate lookup now instead of waiting.
func Refresh(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := sessionKey(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := svc.Refresh(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

func SelectShipping(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := sessionKey(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload shippingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := svc.SelectShipping(r.Context(), key, strings.TrimSpace(payload.OptionID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

// Submit writes the pending order and returns the hosted payment page. A
// signed-in shopper's order is linked to their account.
func Submit(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := sessionKey(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload submitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkoutsvc.SubmitInput{
			Email:         payload.Email,
			Address:       payload.Address,
			PaymentMethod: payload.PaymentMethod,
		}
		if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
			if userID, err := uuid.Parse(raw); err == nil {
				input.UserID = &userID
			}
		}

		result, err := svc.Submit(r.Context(), key, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// QuickCheckout opens a hosted checkout straight from the cart.
func QuickCheckout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := sessionKey(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload quickRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		result, err := svc.QuickCheckout(r.Context(), key, checkoutsvc.QuickCheckoutInput{Email: payload.Email})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Verify is called by the success page with the payment session id.
func Verify(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		var payload verifyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		// the cart is only cleared when the shopper still carries its session
		key := middleware.CartSessionFromContext(r.Context())
		result, err := svc.VerifyPayment(r.Context(), key, payload.SessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func sessionKey(r *http.Request, svc checkoutsvc.Service) (string, error) {
	if svc == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable")
	}
	key := middleware.CartSessionFromContext(r.Context())
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "cart session missing")
	}
	return key, nil
}
