package wishlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/db/models"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
)

// EntryState tracks one product's optimistic lifecycle.
type EntryState string

const (
	StateIdle       EntryState = "idle"
	StatePending    EntryState = "pending"
	StateCommitted  EntryState = "committed"
	StateRolledBack EntryState = "rolled_back"
)

var allowedEntryTransitions = map[EntryState]map[EntryState]bool{
	StateIdle:       {StatePending: true},
	StatePending:    {StateCommitted: true, StateRolledBack: true},
	StateCommitted:  {StatePending: true},
	StateRolledBack: {StatePending: true},
}

func canTransition(from, to EntryState) bool {
	return allowedEntryTransitions[from][to]
}

type mutation string

const (
	mutationAdd    mutation = "add"
	mutationRemove mutation = "remove"
)

type writer interface {
	AddItem(ctx context.Context, userID uuid.UUID, input AddInput) (models.WishlistItem, error)
	RemoveItem(ctx context.Context, userID uuid.UUID, productID string) error
	ListItems(ctx context.Context, userID uuid.UUID) ([]models.WishlistItem, error)
}

type trackedEntry struct {
	item    ItemDTO
	state   EntryState
	op      mutation
	visible bool
}

// Tracker holds one user's wishlist in memory. Mutations are applied before
// the write reaches the store and are compensated when the write fails.
type Tracker struct {
	userID uuid.UUID
	store  writer
	now    func() time.Time

	mu       sync.Mutex
	loadedAt time.Time
	order    []string
	entries  map[string]*trackedEntry
}

func newTracker(userID uuid.UUID, store writer) *Tracker {
	return &Tracker{
		userID:  userID,
		store:   store,
		now:     time.Now,
		entries: map[string]*trackedEntry{},
	}
}

// Load replaces the in-memory view with the stored rows. Entries with a
// write in flight are kept as they are.
func (t *Tracker) Load(ctx context.Context) error {
	rows, err := t.store.ListItems(ctx, t.userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load wishlist")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	next := map[string]*trackedEntry{}
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		order = append(order, row.ProductID)
		next[row.ProductID] = &trackedEntry{item: toDTO(row), state: StateCommitted, visible: true}
	}
	for _, productID := range t.order {
		e := t.entries[productID]
		if e == nil || e.state != StatePending {
			continue
		}
		if _, ok := next[productID]; !ok {
			order = append(order, productID)
		}
		next[productID] = e
	}
	t.entries = next
	t.order = order
	t.loadedAt = t.now()
	return nil
}

// Loaded reports whether Load has succeeded at least once.
func (t *Tracker) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.loadedAt.IsZero()
}

// stale reports whether the last successful Load is older than maxAge.
func (t *Tracker) stale(maxAge time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadedAt.IsZero() || t.now().Sub(t.loadedAt) >= maxAge
}

// Items returns the visible entries, pending additions included.
func (t *Tracker) Items() []ItemDTO {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ItemDTO, 0, len(t.order))
	for _, productID := range t.order {
		e := t.entries[productID]
		if e == nil || !e.visible {
			continue
		}
		item := e.item
		item.Pending = e.state == StatePending
		out = append(out, item)
	}
	return out
}

// Contains reports whether productID is currently shown as liked.
func (t *Tracker) Contains(productID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[productID]
	return e != nil && e.visible
}

// Count is the number of visible entries.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.visible {
			n++
		}
	}
	return n
}

// State returns the lifecycle state of productID, StateIdle when untracked.
func (t *Tracker) State(productID string) EntryState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.entries[productID]; e != nil {
		return e.state
	}
	return StateIdle
}

// Add shows the product immediately with a temporary id, then swaps in the
// stored row. A failed write removes the temporary entry again.
func (t *Tracker) Add(ctx context.Context, input AddInput) (ItemDTO, error) {
	if input.ProductID == "" {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}

	t.mu.Lock()
	e := t.entries[input.ProductID]
	if e != nil && e.visible && e.state == StateCommitted {
		item := e.item
		t.mu.Unlock()
		return item, nil
	}
	from := StateIdle
	var inflight mutation
	if e != nil {
		from, inflight = e.state, e.op
	}
	if !canTransition(from, StatePending) {
		t.mu.Unlock()
		return ItemDTO{}, conflictErr(input.ProductID, from, inflight)
	}
	if e == nil {
		e = &trackedEntry{}
		t.entries[input.ProductID] = e
		t.order = append(t.order, input.ProductID)
	}
	e.item = ItemDTO{
		ID:           uuid.New(),
		ProductID:    input.ProductID,
		ProductName:  input.ProductName,
		ProductImage: input.ProductImage,
		ProductPrice: input.ProductPrice,
	}
	e.state = StatePending
	e.op = mutationAdd
	e.visible = true
	t.mu.Unlock()

	row, err := t.store.AddItem(ctx, t.userID, input)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		e.state = StateRolledBack
		e.visible = false
		t.dropLocked(input.ProductID)
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to add wishlist item")
	}
	e.item = toDTO(row)
	e.state = StateCommitted
	e.op = ""
	return e.item, nil
}

// Remove hides the product immediately. A failed write restores it.
func (t *Tracker) Remove(ctx context.Context, productID string) error {
	if productID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}

	t.mu.Lock()
	e := t.entries[productID]
	if e == nil || !e.visible {
		t.mu.Unlock()
		return nil
	}
	if !canTransition(e.state, StatePending) {
		state, inflight := e.state, e.op
		t.mu.Unlock()
		return conflictErr(productID, state, inflight)
	}
	e.state = StatePending
	e.op = mutationRemove
	e.visible = false
	t.mu.Unlock()

	err := t.store.RemoveItem(ctx, t.userID, productID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		// the row is still stored, so the entry settles back to committed
		e.visible = true
		e.op = ""
		e.state = StateCommitted
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to remove wishlist item")
	}
	e.state = StateCommitted
	t.dropLocked(productID)
	return nil
}

func (t *Tracker) dropLocked(productID string) {
	delete(t.entries, productID)
	for i, id := range t.order {
		if id == productID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *Tracker) busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.state == StatePending {
			return true
		}
	}
	return false
}

func conflictErr(productID string, state EntryState, inflight mutation) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("wishlist change for %s already in progress", productID)).
		WithDetails(map[string]any{
			"product_id": productID,
			"state":      state,
			"in_flight":  inflight,
		})
}
