package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/identitywear/storefront-backend/internal/cart"
	"github.com/identitywear/storefront-backend/pkg/debounce"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
	"github.com/identitywear/storefront-backend/pkg/metrics"
	"github.com/identitywear/storefront-backend/pkg/types"
)

const refreshTimeout = 15 * time.Second

// Session is one shopper's checkout form: the address, the address errors and
// the shipping options quoted for it.
type Session struct {
	validator     AddressValidator
	rater         ShippingRater
	items         func() []cart.LineItem
	debouncer     *debounce.Debouncer
	fallbackPrice float64
	metrics       *metrics.CheckoutMetrics
	logg          *logger.Logger
	now           func() time.Time

	mu            sync.Mutex
	gen           uint64
	phase         Phase
	address       types.ShippingAddress
	addressErrors map[string]string
	options       []ShippingOption
	selectedID    string
	fallback      bool
	lastUsed      time.Time
}

// SessionParams wires a Session.
type SessionParams struct {
	Validator     AddressValidator
	Rater         ShippingRater
	Items         func() []cart.LineItem
	Debounce      time.Duration
	FallbackPrice float64
	Metrics       *metrics.CheckoutMetrics
	Logger        *logger.Logger
}

// NewSession validates params and returns a session in address entry.
func NewSession(params SessionParams) (*Session, error) {
	if params.Validator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "address validator required")
	}
	if params.Rater == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shipping rater required")
	}
	if params.Items == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart items source required")
	}
	if params.FallbackPrice <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fallback shipping price must be positive")
	}
	return &Session{
		validator:     params.Validator,
		rater:         params.Rater,
		items:         params.Items,
		debouncer:     debounce.New(params.Debounce),
		fallbackPrice: params.FallbackPrice,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           time.Now,
		phase:         PhaseAddressEntry,
		lastUsed:      time.Now(),
	}, nil
}

// UpdateAddress stores addr. When a field that decides shipping changed, a
// refresh is scheduled after the debounce delay and any pending one is dropped.
// It reports whether a refresh was scheduled.
func (s *Session) UpdateAddress(ctx context.Context, addr types.ShippingAddress) bool {
	s.mu.Lock()
	s.lastUsed = s.now()
	changed := addr.LocationKey() != s.address.LocationKey()
	s.address = addr
	if !changed {
		s.mu.Unlock()
		return false
	}
	s.gen++
	gen := s.gen
	s.addressErrors = nil
	s.phase = PhaseAddressEntry
	// rates belong to the old address; selectedID stays as the preference
	s.options = nil
	s.fallback = false
	s.mu.Unlock()

	if !lookupReady(addr) {
		s.debouncer.Cancel()
		return false
	}

	bg := context.WithoutCancel(ctx)
	s.debouncer.Schedule(func() {
		runCtx, cancel := context.WithTimeout(bg, refreshTimeout)
		defer cancel()
		s.refresh(runCtx, gen)
	})
	return true
}

// Refresh runs validation and rate lookup now, dropping a pending debounced run.
func (s *Session) Refresh(ctx context.Context) {
	s.debouncer.Cancel()

	s.mu.Lock()
	s.lastUsed = s.now()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.refresh(ctx, gen)
}

// SelectShipping picks one of the current options.
func (s *Session) SelectShipping(optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()

	if findOption(s.options, optionID) == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping option").
			WithDetails(map[string]string{"shippingMethod": "Please select a shipping method"})
	}
	s.selectedID = optionID
	return nil
}

// Selected returns the chosen shipping option, nil when none.
func (s *Session) Selected() *ShippingOption {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findOption(s.options, s.selectedID)
}

// Quoted returns the selected option only when it was rated for the current
// address. A refresh that is still debounced, or that never ran, runs now.
// When the address failed validation its field errors are returned instead.
func (s *Session) Quoted(ctx context.Context) (*ShippingOption, map[string]string) {
	s.mu.Lock()
	settled := s.phase == PhaseShippingReady || s.phase == PhaseAddressInvalid
	s.mu.Unlock()
	if !settled || s.debouncer.Pending() {
		runCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
		s.Refresh(runCtx)
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseShippingReady:
		return findOption(s.options, s.selectedID), nil
	case PhaseAddressInvalid:
		errs := make(map[string]string, len(s.addressErrors))
		for k, v := range s.addressErrors {
			errs[k] = v
		}
		return nil, errs
	default:
		return nil, nil
	}
}

// Address returns the last stored address.
func (s *Session) Address() types.ShippingAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Snapshot returns the session state with totals at taxRate.
func (s *Session) Snapshot(taxRate float64, base TaxBase) State {
	items := s.items()

	s.mu.Lock()
	defer s.mu.Unlock()

	options := append([]ShippingOption(nil), s.options...)
	var errs map[string]string
	if len(s.addressErrors) > 0 {
		errs = make(map[string]string, len(s.addressErrors))
		for k, v := range s.addressErrors {
			errs[k] = v
		}
	}
	return State{
		Phase:            s.phase,
		Address:          s.address,
		AddressErrors:    errs,
		Options:          options,
		SelectedOptionID: selectedID(s.options, s.selectedID),
		FallbackShipping: s.fallback,
		RefreshPending:   s.debouncer.Pending(),
		Totals:           ComputeTotals(items, findOption(s.options, s.selectedID), taxRate, base),
	}
}

// MarkSubmitted moves the session past address entry.
func (s *Session) MarkSubmitted() {
	s.debouncer.Cancel()
	s.mu.Lock()
	s.gen++
	s.phase = PhaseSubmitted
	s.mu.Unlock()
}

// Close drops any pending refresh.
func (s *Session) Close() {
	s.debouncer.Cancel()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) refresh(ctx context.Context, gen uint64) {
	started := time.Now()

	s.mu.Lock()
	addr := s.address
	s.mu.Unlock()
	if !lookupReady(addr) {
		return
	}
	if !s.apply(gen, func() { s.phase = PhaseValidating; s.addressErrors = nil }) {
		return
	}

	validation, err := s.validator.ValidateAddress(ctx, addr)
	if err != nil || !validation.IsValid {
		outcome := "address_invalid"
		errs := validation.Errors
		if err != nil {
			outcome = "validation_error"
			s.logWarn(ctx, "checkout.address_validation_failed", err)
		}
		if len(errs) == 0 {
			errs = map[string]string{"address": "Address could not be validated"}
		}
		s.apply(gen, func() {
			s.phase = PhaseAddressInvalid
			s.addressErrors = errs
			s.options = nil
			s.selectedID = ""
			s.fallback = false
		})
		s.metrics.ObserveRefresh(outcome, time.Since(started))
		return
	}

	if !s.apply(gen, func() {}) {
		return
	}

	options, err := s.rater.FetchRates(ctx, parcelFor(addr, s.items()))
	fallback := false
	outcome := "rated"
	if err != nil || len(options) == 0 {
		if err != nil {
			s.logWarn(ctx, "checkout.shipping_lookup_failed", err)
		}
		options = []ShippingOption{FallbackOption(s.fallbackPrice)}
		fallback = true
		outcome = "fallback"
	}

	s.apply(gen, func() {
		s.phase = PhaseShippingReady
		s.options = options
		s.selectedID = keepSelection(options, s.selectedID)
		s.fallback = fallback
	})
	s.metrics.ObserveRefresh(outcome, time.Since(started))
}

func selectedID(options []ShippingOption, id string) string {
	if findOption(options, id) == nil {
		return ""
	}
	return id
}

// apply runs fn under the lock unless a newer address superseded gen.
func (s *Session) apply(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	fn()
	return true
}

func (s *Session) logWarn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}
