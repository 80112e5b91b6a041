package cart

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

const defaultIdleTTL = 30 * time.Minute

// Registry hands out one Store per cart session. It is built once at startup
// and passed to the HTTP layer.
type Registry struct {
	persister Persister
	taxRate   float64
	idleTTL   time.Duration
	logg      *logger.Logger
	now       func() time.Time

	mu        sync.Mutex
	stores    map[string]*entry
	lastSweep time.Time

	// loads collapses concurrent first requests for one session; the persister
	// read runs outside mu.
	loads singleflight.Group
}

type entry struct {
	store    *Store
	lastUsed time.Time
}

// RegistryParams configures a Registry.
type RegistryParams struct {
	Persister Persister
	TaxRate   float64
	// IdleTTL evicts in-memory stores untouched for this long; their state
	// stays in the persister and is reloaded on the next request.
	IdleTTL time.Duration
	Logger  *logger.Logger
}

// NewRegistry validates params and returns an empty registry.
func NewRegistry(params RegistryParams) (*Registry, error) {
	if params.Persister == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart persister required")
	}
	if params.TaxRate < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must be non-negative")
	}
	ttl := params.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	return &Registry{
		persister: params.Persister,
		taxRate:   params.TaxRate,
		idleTTL:   ttl,
		logg:      params.Logger,
		now:       time.Now,
		stores:    map[string]*entry{},
	}, nil
}

// Get returns the store for sessionID, loading it on first use.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Store, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart session is required")
	}

	if store := r.cached(sessionID); store != nil {
		return store, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.loads.Do(sessionID, func() (any, error) {
		store, err := NewStore(loadCtx, StoreParams{
			Key:       r.persister.Key(sessionID),
			Persister: r.persister,
			TaxRate:   r.taxRate,
			Logger:    r.logg,
		})
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if e, ok := r.stores[sessionID]; ok {
			e.lastUsed = r.now()
			return e.store, nil
		}
		r.stores[sessionID] = &entry{store: store, lastUsed: r.now()}
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

func (r *Registry) cached(sessionID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictIdle(now)
	e, ok := r.stores[sessionID]
	if !ok {
		return nil
	}
	e.lastUsed = now
	return e.store
}

// Forget drops the in-memory store for sessionID without touching persistence.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.stores, sessionID)
	r.mu.Unlock()
}

// Len reports how many stores are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

func (r *Registry) evictIdle(now time.Time) {
	if now.Sub(r.lastSweep) < r.idleTTL/2 {
		return
	}
	r.lastSweep = now
	for id, e := range r.stores {
		if now.Sub(e.lastUsed) > r.idleTTL {
			delete(r.stores, id)
		}
	}
}
