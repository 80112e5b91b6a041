package cart

import (
	"context"
	"fmt"
	"sync"

	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

// Store is one shopper's cart. Mutations are serialised by mu and replace the
// item slice wholesale, so a slice returned by Items is never modified later.
type Store struct {
	key       string
	persister Persister
	taxRate   float64
	logg      *logger.Logger

	mu    sync.Mutex
	items []LineItem
}

// StoreParams configures a Store.
type StoreParams struct {
	Key       string
	Persister Persister
	TaxRate   float64
	Logger    *logger.Logger
}

// NewStore builds a cart and loads its persisted items once. A load failure is
// logged and the cart starts empty.
func NewStore(ctx context.Context, params StoreParams) (*Store, error) {
	if params.Key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart key is required")
	}
	if params.Persister == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart persister required")
	}
	if params.TaxRate < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must be non-negative")
	}
	s := &Store{
		key:       params.Key,
		persister: params.Persister,
		taxRate:   params.TaxRate,
		logg:      params.Logger,
	}

	items, err := params.Persister.Load(ctx, params.Key)
	if err != nil {
		s.logPersistence(ctx, "cart.load_failed", err)
		items = nil
	}
	s.items = sanitize(items)
	return s, nil
}

// Key returns the persistence key of this cart.
func (s *Store) Key() string {
	return s.key
}

// TaxRate returns the fixed rate used by Totals.
func (s *Store) TaxRate() float64 {
	return s.taxRate
}

// AddItem inserts the variant or increments its line. For inventory-managed
// variants the combined quantity may not exceed available.
func (s *Store) AddItem(ctx context.Context, product Product, variant Variant, quantity, available int) error {
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": quantity})
	}
	if variant.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.items, variant.ID)
	existing := 0
	if idx >= 0 {
		existing = s.items[idx].Quantity
	}

	if variant.ManageInventory && existing+quantity > available {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("only %d available", available)).
			WithDetails(map[string]any{
				"variant_id": variant.ID,
				"requested":  quantity,
				"in_cart":    existing,
				"available":  available,
			})
	}

	next := make([]LineItem, len(s.items), len(s.items)+1)
	copy(next, s.items)
	if idx >= 0 {
		next[idx].Quantity += quantity
	} else {
		next = append(next, LineItem{Product: product, Variant: variant, Quantity: quantity})
	}
	s.commit(ctx, next)
	return nil
}

// RemoveItem drops the line for variantID. Absent ids are ignored.
func (s *Store) RemoveItem(ctx context.Context, variantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.items, variantID)
	if idx < 0 {
		return
	}
	next := make([]LineItem, 0, len(s.items)-1)
	next = append(next, s.items[:idx]...)
	next = append(next, s.items[idx+1:]...)
	s.commit(ctx, next)
}

// UpdateQuantity sets the quantity of an existing line. Values below 1 are
// ignored; values above known stock are clamped and reported in the Notice.
func (s *Store) UpdateQuantity(ctx context.Context, variantID string, quantity int) Notice {
	if quantity < 1 {
		return Notice{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.items, variantID)
	if idx < 0 {
		return Notice{}
	}

	notice := Notice{}
	applied := quantity
	variant := s.items[idx].Variant
	if variant.ManageInventory && quantity > variant.InventoryQuantity {
		applied = variant.InventoryQuantity
		notice = Notice{
			Kind:      NoticeLimitReached,
			VariantID: variantID,
			Requested: quantity,
			Applied:   applied,
			Message:   fmt.Sprintf("only %d available", applied),
		}
		if applied < 1 {
			// sold out since it was added; leave the line for the shopper to remove
			return notice
		}
	}
	if s.items[idx].Quantity == applied {
		return notice
	}

	next := make([]LineItem, len(s.items))
	copy(next, s.items)
	next[idx].Quantity = applied
	s.commit(ctx, next)
	return notice
}

// Clear empties the cart and removes its persisted copy.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	if err := s.persister.Delete(ctx, s.key); err != nil {
		s.logPersistence(ctx, "cart.clear_failed", err)
	}
}

// Items returns the current lines in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	items := s.items
	s.mu.Unlock()

	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

// ItemCount sums quantities across lines.
func (s *Store) ItemCount() int {
	count := 0
	for _, item := range s.Items() {
		count += item.Quantity
	}
	return count
}

// Totals derives subtotal, tax and total from the current lines.
func (s *Store) Totals() Totals {
	subtotal := Subtotal(s.Items())
	tax := ApplyRate(subtotal, s.taxRate)
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal + tax}
}

// commit swaps in next and writes it through. Caller holds mu.
func (s *Store) commit(ctx context.Context, next []LineItem) {
	s.items = next
	if err := s.persister.Save(ctx, s.key, next); err != nil {
		s.logPersistence(ctx, "cart.persist_failed", err)
	}
}

func (s *Store) logPersistence(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	wrapped := pkgerrors.Wrap(pkgerrors.CodePersistence, err, msg)
	ctx = s.logg.WithField(ctx, "cart_key", s.key)
	s.logg.Error(ctx, msg, wrapped)
}

func indexOf(items []LineItem, variantID string) int {
	for i := range items {
		if items[i].Variant.ID == variantID {
			return i
		}
	}
	return -1
}

// sanitize drops lines a stale or hand-edited payload could carry.
func sanitize(items []LineItem) []LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.Variant.ID == "" || item.Quantity < 1 {
			continue
		}
		out = append(out, item)
	}
	return out
}
