package checkout

import (
	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/types"
)

// ShippingOption is one carrier rate. Price is in major units, as the rate
// lookup returns it.
type ShippingOption struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	Price                 float64 `json:"price"`
	EstimatedDeliveryDays string  `json:"estimatedDeliveryDays,omitempty"`
}

// Totals are checkout amounts in minor units.
type Totals struct {
	Subtotal int64   `json:"subtotal"`
	Shipping int64   `json:"shipping"`
	Tax      int64   `json:"tax"`
	Total    int64   `json:"total"`
	TaxRate  float64 `json:"tax_rate"`
}

// TaxBase selects which amounts the tax rate applies to.
type TaxBase int

const (
	// TaxBaseSubtotalAndShipping taxes goods and shipping (checkout page).
	TaxBaseSubtotalAndShipping TaxBase = iota
	// TaxBaseSubtotal taxes goods only (cart drawer quick checkout).
	TaxBaseSubtotal
)

func (b TaxBase) String() string {
	switch b {
	case TaxBaseSubtotal:
		return "subtotal"
	default:
		return "subtotal_and_shipping"
	}
}

// Phase is where a checkout session currently stands.
type Phase string

const (
	PhaseAddressEntry   Phase = "address_entry"
	PhaseValidating     Phase = "validating"
	PhaseAddressInvalid Phase = "address_invalid"
	PhaseShippingReady  Phase = "shipping_ready"
	PhaseSubmitted      Phase = "submitted"
)

// AddressValidation is the answer of the address check.
type AddressValidation struct {
	IsValid bool              `json:"isValid"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// RateRequest describes the parcel for a rate lookup. Weight is grams,
// dimensions are centimetres.
type RateRequest struct {
	Country  string `json:"country"`
	Postcode string `json:"postcode"`
	Weight   int    `json:"weight"`
	Length   int    `json:"length"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// PaymentItem is one line sent to the payment processor, price in major units.
type PaymentItem struct {
	ProductID    string  `json:"product_id"`
	VariantID    string  `json:"variant_id"`
	ProductTitle string  `json:"product_title"`
	VariantTitle string  `json:"variant_title,omitempty"`
	ProductImage string  `json:"product_image,omitempty"`
	Quantity     int     `json:"quantity"`
	Price        float64 `json:"price"`
}

// PaymentRequest asks for a hosted checkout session. Amounts are major units.
type PaymentRequest struct {
	Items         []PaymentItem `json:"items"`
	SuccessURL    string        `json:"successUrl"`
	CancelURL     string        `json:"cancelUrl"`
	OrderID       string        `json:"orderId,omitempty"`
	CustomerEmail string        `json:"customerEmail,omitempty"`
	ShippingRate  float64       `json:"shippingRate"`
	TaxAmount     float64       `json:"taxAmount"`
	Currency      string        `json:"currency,omitempty"`
}

// PaymentSession is the hosted checkout the shopper is redirected to.
type PaymentSession struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
}

// PaymentVerification reports whether a hosted checkout was paid.
type PaymentVerification struct {
	Success       bool       `json:"success"`
	SessionID     string     `json:"session_id"`
	PaymentStatus string     `json:"payment_status,omitempty"`
	OrderID       *uuid.UUID `json:"order_id,omitempty"`
}

// State is a snapshot of a checkout session.
type State struct {
	Phase            Phase                 `json:"phase"`
	Address          types.ShippingAddress `json:"address"`
	AddressErrors    map[string]string     `json:"address_errors,omitempty"`
	Options          []ShippingOption      `json:"shipping_options"`
	SelectedOptionID string                `json:"selected_shipping_id,omitempty"`
	FallbackShipping bool                  `json:"fallback_shipping"`
	RefreshPending   bool                  `json:"refresh_pending"`
	Totals           Totals                `json:"totals"`
}

// SubmitInput is the shopper's explicit order submission.
type SubmitInput struct {
	Email         string                 `json:"email"`
	Address       *types.ShippingAddress `json:"address,omitempty"`
	PaymentMethod string                 `json:"payment_method,omitempty"`
	UserID        *uuid.UUID             `json:"-"`
}

// SubmitResult carries the order and where to send the shopper next.
type SubmitResult struct {
	OrderID     uuid.UUID `json:"order_id"`
	CheckoutURL string    `json:"checkout_url"`
	SessionID   string    `json:"session_id"`
	Totals      Totals    `json:"totals"`
}

// QuickCheckoutInput starts a hosted checkout straight from the cart.
type QuickCheckoutInput struct {
	Email string `json:"email,omitempty"`
}

// QuickCheckoutResult is the hosted checkout created from the cart drawer.
type QuickCheckoutResult struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
	Totals      Totals `json:"totals"`
}

// VerifyResult is returned to the success page.
type VerifyResult struct {
	Success     bool       `json:"success"`
	SessionID   string     `json:"session_id"`
	OrderID     *uuid.UUID `json:"order_id,omitempty"`
	OrderStatus string     `json:"order_status,omitempty"`
	CartCleared bool       `json:"cart_cleared"`
}
