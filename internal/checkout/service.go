package checkout

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/internal/cart"
	"github.com/identitywear/storefront-backend/internal/orders"
	"github.com/identitywear/storefront-backend/pkg/config"
	"github.com/identitywear/storefront-backend/pkg/currency"
	"github.com/identitywear/storefront-backend/pkg/enums"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
	"github.com/identitywear/storefront-backend/pkg/metrics"
	"github.com/identitywear/storefront-backend/pkg/types"
)

const defaultSessionIdleTTL = 30 * time.Minute

var emailValidator = validator.New()

type cartProvider interface {
	Get(ctx context.Context, sessionID string) (*cart.Store, error)
}

type taxRateSource interface {
	TaxRate(ctx context.Context) float64
}

type orderService interface {
	CreatePending(ctx context.Context, input orders.CreateInput) (*orders.OrderDTO, error)
	AttachPaymentSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
	Transition(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus) (*orders.OrderDTO, error)
	TransitionByPaymentSession(ctx context.Context, sessionID string, to enums.OrderStatus) (*orders.OrderDTO, error)
}

// Service drives checkout for every cart session.
type Service interface {
	State(ctx context.Context, sessionKey string) (State, error)
	UpdateAddress(ctx context.Context, sessionKey string, addr types.ShippingAddress) (State, error)
	Refresh(ctx context.Context, sessionKey string) (State, error)
	SelectShipping(ctx context.Context, sessionKey, optionID string) (State, error)
	Submit(ctx context.Context, sessionKey string, input SubmitInput) (*SubmitResult, error)
	QuickCheckout(ctx context.Context, sessionKey string, input QuickCheckoutInput) (*QuickCheckoutResult, error)
	VerifyPayment(ctx context.Context, sessionKey, paymentSessionID string) (*VerifyResult, error)
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Config    config.CheckoutConfig
	Carts     cartProvider
	Orders    orderService
	Settings  taxRateSource
	Validator AddressValidator
	Rater     ShippingRater
	Payments  PaymentGateway
	Metrics   *metrics.CheckoutMetrics
	Logger    *logger.Logger
	IdleTTL   time.Duration
}

type service struct {
	cfg       config.CheckoutConfig
	carts     cartProvider
	orders    orderService
	settings  taxRateSource
	validator AddressValidator
	rater     ShippingRater
	payments  PaymentGateway
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
	idleTTL   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewService validates dependencies and returns the checkout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Carts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart registry required")
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	case params.Settings == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store settings required")
	case params.Validator == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "address validator required")
	case params.Rater == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shipping rater required")
	case params.Payments == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if strings.TrimSpace(params.Config.PublicBaseURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "public base url required")
	}
	if params.Config.FallbackShippingPrice <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fallback shipping price must be positive")
	}
	ttl := params.IdleTTL
	if ttl <= 0 {
		ttl = defaultSessionIdleTTL
	}
	return &service{
		cfg:       params.Config,
		carts:     params.Carts,
		orders:    params.Orders,
		settings:  params.Settings,
		validator: params.Validator,
		rater:     params.Rater,
		payments:  params.Payments,
		metrics:   params.Metrics,
		logg:      params.Logger,
		idleTTL:   ttl,
		now:       time.Now,
		sessions:  map[string]*Session{},
	}, nil
}

func (s *service) State(ctx context.Context, sessionKey string) (State, error) {
	sess, _, err := s.session(ctx, sessionKey)
	if err != nil {
		return State{}, err
	}
	return sess.Snapshot(s.settings.TaxRate(ctx), TaxBaseSubtotalAndShipping), nil
}

func (s *service) UpdateAddress(ctx context.Context, sessionKey string, addr types.ShippingAddress) (State, error) {
	sess, _, err := s.session(ctx, sessionKey)
	if err != nil {
		return State{}, err
	}
	sess.UpdateAddress(ctx, addr)
	return sess.Snapshot(s.settings.TaxRate(ctx), TaxBaseSubtotalAndShipping), nil
}

func (s *service) Refresh(ctx context.Context, sessionKey string) (State, error) {
	sess, _, err := s.session(ctx, sessionKey)
	if err != nil {
		return State{}, err
	}
	sess.Refresh(ctx)
	return sess.Snapshot(s.settings.TaxRate(ctx), TaxBaseSubtotalAndShipping), nil
}

func (s *service) SelectShipping(ctx context.Context, sessionKey, optionID string) (State, error) {
	sess, _, err := s.session(ctx, sessionKey)
	if err != nil {
		return State{}, err
	}
	if err := sess.SelectShipping(strings.TrimSpace(optionID)); err != nil {
		return State{}, err
	}
	return sess.Snapshot(s.settings.TaxRate(ctx), TaxBaseSubtotalAndShipping), nil
}

// Submit validates the form, writes the pending order and opens a payment
// session. The order is kept when the payment session cannot be created.
func (s *service) Submit(ctx context.Context, sessionKey string, input SubmitInput) (*SubmitResult, error) {
	sess, store, err := s.session(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if input.Address != nil {
		sess.UpdateAddress(ctx, *input.Address)
	}

	email := strings.TrimSpace(input.Email)
	if err := emailValidator.Var(email, "required,email"); err != nil {
		fieldErrs := map[string]string{"email": "Please enter a valid email address"}
		if sess.Selected() == nil {
			fieldErrs["shippingMethod"] = "Please select a shipping method"
		}
		return nil, s.invalidForm(fieldErrs)
	}

	items := store.Items()
	if len(items) == 0 {
		s.metrics.IncSubmission("empty_cart")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	// the order is only written for an address that was validated and rated
	option, fieldErrs := sess.Quoted(ctx)
	if option == nil {
		if fieldErrs == nil {
			fieldErrs = map[string]string{}
		}
		fieldErrs["shippingMethod"] = "Please select a shipping method"
		return nil, s.invalidForm(fieldErrs)
	}

	totals := ComputeTotals(items, option, s.settings.TaxRate(ctx), TaxBaseSubtotalAndShipping)
	addr := sess.Address()
	addr.Email = email

	order, err := s.orders.CreatePending(ctx, orders.CreateInput{
		UserID:             input.UserID,
		Email:              email,
		Address:            addr,
		Currency:           s.cfg.Currency,
		ShippingMethodID:   option.ID,
		ShippingMethodName: MethodName(*option),
		Subtotal:           totals.Subtotal,
		Shipping:           totals.Shipping,
		Tax:                totals.Tax,
		Total:              totals.Total,
		PaymentMethod:      input.PaymentMethod,
		Items:              orderItems(items),
	})
	if err != nil {
		s.metrics.IncSubmission("order_failed")
		return nil, err
	}
	ctx = s.withOrder(ctx, order.ID)

	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	payment, err := s.payments.CreateSession(ctx, PaymentRequest{
		Items:         paymentItems(items),
		SuccessURL:    base + "/checkout-success?order_id=" + order.ID.String(),
		CancelURL:     base + "/checkout?canceled=true",
		OrderID:       order.ID.String(),
		CustomerEmail: email,
		ShippingRate:  currency.MinorToMajorFloat(totals.Shipping),
		TaxAmount:     currency.MinorToMajorFloat(totals.Tax),
		Currency:      s.cfg.Currency,
	})
	if err != nil {
		s.metrics.IncPayment("failed")
		s.metrics.IncSubmission("payment_failed")
		s.logError(ctx, "checkout.payment_session_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not initialize payment").
			WithDetails(map[string]any{"order_id": order.ID.String(), "order_status": enums.OrderStatusPending})
	}
	s.metrics.IncPayment("created")

	if err := s.orders.AttachPaymentSession(ctx, order.ID, payment.SessionID); err != nil {
		// the success page can still settle the order through its id
		s.logError(ctx, "checkout.attach_payment_session_failed", err)
	}

	sess.MarkSubmitted()
	s.metrics.IncSubmission("submitted")
	return &SubmitResult{
		OrderID:     order.ID,
		CheckoutURL: payment.CheckoutURL,
		SessionID:   payment.SessionID,
		Totals:      totals,
	}, nil
}

// QuickCheckout opens a payment session straight from the cart drawer with
// the flat shipping rate and tax on the subtotal only. No order row is written.
func (s *service) QuickCheckout(ctx context.Context, sessionKey string, input QuickCheckoutInput) (*QuickCheckoutResult, error) {
	store, err := s.carts.Get(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(input.Email)
	if email != "" {
		if err := emailValidator.Var(email, "email"); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email").
				WithDetails(map[string]string{"email": "Please enter a valid email address"})
		}
	}

	items := store.Items()
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	flat := ShippingOption{ID: "standard", Name: "Standard Shipping", Price: s.cfg.FallbackShippingPrice}
	totals := ComputeTotals(items, &flat, s.settings.TaxRate(ctx), TaxBaseSubtotal)

	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	payment, err := s.payments.CreateSession(ctx, PaymentRequest{
		Items:         paymentItems(items),
		SuccessURL:    base + "/checkout-success",
		CancelURL:     base + "/products",
		CustomerEmail: email,
		ShippingRate:  flat.Price,
		TaxAmount:     currency.MinorToMajorFloat(totals.Tax),
		Currency:      s.cfg.Currency,
	})
	if err != nil {
		s.metrics.IncPayment("failed")
		s.logError(ctx, "checkout.quick_payment_session_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "there was a problem initiating checkout")
	}
	s.metrics.IncPayment("created")

	return &QuickCheckoutResult{
		CheckoutURL: payment.CheckoutURL,
		SessionID:   payment.SessionID,
		Totals:      totals,
	}, nil
}

// VerifyPayment confirms a hosted checkout. A paid session settles its order
// and clears the shopper's cart.
func (s *service) VerifyPayment(ctx context.Context, sessionKey, paymentSessionID string) (*VerifyResult, error) {
	paymentSessionID = strings.TrimSpace(paymentSessionID)
	if paymentSessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}

	verification, err := s.payments.VerifySession(ctx, paymentSessionID)
	if err != nil {
		s.metrics.IncPayment("verify_failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not verify payment")
	}

	result := &VerifyResult{
		Success:   verification.Success,
		SessionID: paymentSessionID,
		OrderID:   verification.OrderID,
	}
	if !verification.Success {
		s.metrics.IncPayment("unpaid")
		return result, nil
	}
	s.metrics.IncPayment("verified")

	order, err := s.settleOrder(ctx, paymentSessionID, verification.OrderID)
	if err != nil {
		return nil, err
	}
	if order != nil {
		id := order.ID
		result.OrderID = &id
		result.OrderStatus = string(order.Status)
	}

	if strings.TrimSpace(sessionKey) != "" {
		store, err := s.carts.Get(ctx, sessionKey)
		if err != nil {
			return nil, err
		}
		store.Clear(ctx)
		result.CartCleared = true
		s.dropSession(store.Key())
	}
	return result, nil
}

func (s *service) settleOrder(ctx context.Context, paymentSessionID string, orderID *uuid.UUID) (*orders.OrderDTO, error) {
	order, err := s.orders.TransitionByPaymentSession(ctx, paymentSessionID, enums.OrderStatusPaid)
	if err == nil {
		return order, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	if orderID == nil {
		// quick checkout sessions have no order row
		return nil, nil
	}
	order, err = s.orders.Transition(ctx, *orderID, enums.OrderStatusPaid)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

func (s *service) session(ctx context.Context, key string) (*Session, *cart.Store, error) {
	store, err := s.carts.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	cartKey := store.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictIdleLocked()

	if sess, ok := s.sessions[cartKey]; ok {
		return sess, store, nil
	}
	sess, err := NewSession(SessionParams{
		Validator: s.validator,
		Rater:     s.rater,
		// the registry may evict and reload the cart, so look it up each time
		Items: func() []cart.LineItem {
			current, err := s.carts.Get(context.Background(), key)
			if err != nil {
				return nil
			}
			return current.Items()
		},
		Debounce:      s.cfg.AddressDebounce,
		FallbackPrice: s.cfg.FallbackShippingPrice,
		Metrics:       s.metrics,
		Logger:        s.logg,
	})
	if err != nil {
		return nil, nil, err
	}
	s.sessions[cartKey] = sess
	return sess, store, nil
}

func (s *service) dropSession(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		sess.Close()
		delete(s.sessions, key)
	}
}

func (s *service) evictIdleLocked() {
	cutoff := s.now().Add(-s.idleTTL)
	for key, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			sess.Close()
			delete(s.sessions, key)
		}
	}
}

func (s *service) withOrder(ctx context.Context, id uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithOrderID(ctx, id.String())
}

func (s *service) invalidForm(fieldErrs map[string]string) error {
	s.metrics.IncSubmission("invalid")
	return pkgerrors.New(pkgerrors.CodeValidation, "checkout form is incomplete").WithDetails(fieldErrs)
}

func (s *service) logError(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(ctx, msg, err)
}

func orderItems(items []cart.LineItem) []orders.ItemInput {
	out := make([]orders.ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, orders.ItemInput{
			ProductID:    item.Product.ID,
			ProductTitle: item.Product.Title,
			VariantID:    item.Variant.ID,
			VariantTitle: item.Variant.Title,
			Quantity:     item.Quantity,
			UnitPrice:    item.Variant.EffectivePrice(),
		})
	}
	return out
}

func paymentItems(items []cart.LineItem) []PaymentItem {
	out := make([]PaymentItem, 0, len(items))
	for _, item := range items {
		out = append(out, PaymentItem{
			ProductID:    item.Product.ID,
			VariantID:    item.Variant.ID,
			ProductTitle: item.Product.Title,
			VariantTitle: item.Variant.Title,
			ProductImage: item.Product.Image,
			Quantity:     item.Quantity,
			Price:        currency.MinorToMajorFloat(item.Variant.EffectivePrice()),
		})
	}
	return out
}
