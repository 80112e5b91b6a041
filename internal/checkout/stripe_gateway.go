package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/identitywear/storefront-backend/pkg/currency"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	pkgstripe "github.com/identitywear/storefront-backend/pkg/stripe"
)

const (
	metadataOrderID = "order_id"
	taxLineName     = "MVA"
	shippingType    = "fixed_amount"
)

type checkoutSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeSessions struct{}

func (stripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (stripeSessions) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.Get(id, params)
}

// StripeGateway creates Checkout Sessions directly with Stripe instead of
// going through the create-stripe-session function.
type StripeGateway struct {
	api      checkoutSessionAPI
	currency string
}

// NewStripeGateway requires an initialised Stripe client so the API key is set.
func NewStripeGateway(client *pkgstripe.Client, currencyCode string) (*StripeGateway, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	return &StripeGateway{api: stripeSessions{}, currency: normalizeCurrency(currencyCode)}, nil
}

func (g *StripeGateway) CreateSession(ctx context.Context, req PaymentRequest) (PaymentSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(withSessionPlaceholder(req.SuccessURL)),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.OrderID != "" {
		params.ClientReferenceID = stripe.String(req.OrderID)
		params.AddMetadata(metadataOrderID, req.OrderID)
	}

	cur := g.currency
	if req.Currency != "" {
		cur = normalizeCurrency(req.Currency)
	}
	for _, item := range req.Items {
		name := item.ProductTitle
		if item.VariantTitle != "" {
			name += " - " + item.VariantTitle
		}
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(name)}
		if item.ProductImage != "" {
			productData.Images = []*string{stripe.String(item.ProductImage)}
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(cur),
				UnitAmount:  stripe.Int64(currency.MajorFloatToMinor(item.Price)),
				ProductData: productData,
			},
		})
	}
	if tax := currency.MajorFloatToMinor(req.TaxAmount); tax > 0 {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(cur),
				UnitAmount:  stripe.Int64(tax),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(taxLineName)},
			},
		})
	}
	if shipping := currency.MajorFloatToMinor(req.ShippingRate); shipping > 0 {
		params.ShippingOptions = []*stripe.CheckoutSessionShippingOptionParams{{
			ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
				DisplayName: stripe.String("Shipping"),
				Type:        stripe.String(shippingType),
				FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
					Amount:   stripe.Int64(shipping),
					Currency: stripe.String(cur),
				},
			},
		}}
	}

	sess, err := g.api.New(params)
	if err != nil {
		return PaymentSession{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe checkout session")
	}
	if sess == nil || sess.URL == "" {
		return PaymentSession{}, pkgerrors.New(pkgerrors.CodeDependency, "invalid response from payment provider")
	}
	return PaymentSession{CheckoutURL: sess.URL, SessionID: sess.ID}, nil
}

func (g *StripeGateway) VerifySession(ctx context.Context, sessionID string) (PaymentVerification, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.api.Get(sessionID, params)
	if err != nil {
		return PaymentVerification{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve stripe checkout session")
	}

	result := PaymentVerification{
		SessionID:     sessionID,
		PaymentStatus: string(sess.PaymentStatus),
		Success:       sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	ref := sess.ClientReferenceID
	if ref == "" && sess.Metadata != nil {
		ref = sess.Metadata[metadataOrderID]
	}
	if id, err := uuid.Parse(ref); err == nil {
		result.OrderID = &id
	}
	return result, nil
}

// withSessionPlaceholder lets Stripe append the session id to the success URL.
func withSessionPlaceholder(raw string) string {
	if strings.Contains(raw, "{CHECKOUT_SESSION_ID}") {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "session_id={CHECKOUT_SESSION_ID}"
}

func normalizeCurrency(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "nok"
	}
	return code
}
