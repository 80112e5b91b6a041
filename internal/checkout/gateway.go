package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/types"
)

const (
	fnValidateAddress = "validate-shipping-address"
	fnShippingOptions = "fetch-shipping-options"
	fnCreateSession   = "create-stripe-session"
	fnVerifyPayment   = "verify-stripe-payment"
)

// AddressValidator checks a shipping address with the carrier.
type AddressValidator interface {
	ValidateAddress(ctx context.Context, addr types.ShippingAddress) (AddressValidation, error)
}

// ShippingRater quotes shipping options for a parcel.
type ShippingRater interface {
	FetchRates(ctx context.Context, req RateRequest) ([]ShippingOption, error)
}

// PaymentGateway creates and verifies hosted checkout sessions.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req PaymentRequest) (PaymentSession, error)
	VerifySession(ctx context.Context, sessionID string) (PaymentVerification, error)
}

type functionInvoker interface {
	Invoke(ctx context.Context, name string, body any, out any) error
}

// FunctionsGateway talks to the storefront's serverless functions. It serves
// address validation, rate lookup and, in function payment mode, payments.
type FunctionsGateway struct {
	fn functionInvoker
}

// NewFunctionsGateway wraps a functions client.
func NewFunctionsGateway(fn functionInvoker) (*FunctionsGateway, error) {
	if fn == nil {
		return nil, errors.New("functions client is required")
	}
	return &FunctionsGateway{fn: fn}, nil
}

func (g *FunctionsGateway) ValidateAddress(ctx context.Context, addr types.ShippingAddress) (AddressValidation, error) {
	body := map[string]string{
		"country":  strings.TrimSpace(addr.Country),
		"postcode": strings.TrimSpace(addr.Zip),
		"city":     strings.TrimSpace(addr.City),
		"address":  strings.TrimSpace(addr.Address),
	}
	var out AddressValidation
	if err := g.fn.Invoke(ctx, fnValidateAddress, body, &out); err != nil {
		return AddressValidation{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "address validation failed")
	}
	return out, nil
}

func (g *FunctionsGateway) FetchRates(ctx context.Context, req RateRequest) ([]ShippingOption, error) {
	var out struct {
		Options []ShippingOption `json:"options"`
	}
	if err := g.fn.Invoke(ctx, fnShippingOptions, req, &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shipping lookup failed")
	}
	return out.Options, nil
}

func (g *FunctionsGateway) CreateSession(ctx context.Context, req PaymentRequest) (PaymentSession, error) {
	var out PaymentSession
	if err := g.fn.Invoke(ctx, fnCreateSession, req, &out); err != nil {
		return PaymentSession{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment session failed")
	}
	if strings.TrimSpace(out.CheckoutURL) == "" {
		return PaymentSession{}, pkgerrors.New(pkgerrors.CodeDependency, "invalid response from payment provider")
	}
	return out, nil
}

func (g *FunctionsGateway) VerifySession(ctx context.Context, sessionID string) (PaymentVerification, error) {
	var out struct {
		Success bool `json:"success"`
		Order   *struct {
			ID            string `json:"id"`
			PaymentStatus string `json:"paymentStatus"`
		} `json:"order"`
	}
	body := map[string]string{"sessionId": sessionID}
	if err := g.fn.Invoke(ctx, fnVerifyPayment, body, &out); err != nil {
		return PaymentVerification{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify payment failed")
	}

	result := PaymentVerification{Success: out.Success, SessionID: sessionID}
	if out.Order != nil {
		result.PaymentStatus = out.Order.PaymentStatus
		if id, err := uuid.Parse(out.Order.ID); err == nil {
			result.OrderID = &id
		}
	}
	return result, nil
}
