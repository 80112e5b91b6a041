package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
)

func TestRegistryReturnsSameStorePerSession(t *testing.T) {
	t.Parallel()
	reg, err := NewRegistry(RegistryParams{Persister: NewMemoryPersister(), TaxRate: 0.25})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx := context.Background()

	a, err := reg.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := reg.Get(ctx, "s1")
	c, _ := reg.Get(ctx, "s2")
	if a != b {
		t.Fatalf("expected the same store for one session")
	}
	if a == c {
		t.Fatalf("sessions must not share a store")
	}
}

func TestRegistryRejectsEmptySession(t *testing.T) {
	t.Parallel()
	reg, _ := NewRegistry(RegistryParams{Persister: NewMemoryPersister()})
	if _, err := reg.Get(context.Background(), "  "); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegistryEvictsIdleStoresButKeepsState(t *testing.T) {
	t.Parallel()
	persister := NewMemoryPersister()
	reg, _ := NewRegistry(RegistryParams{Persister: persister, IdleTTL: time.Minute})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }
	ctx := context.Background()

	store, _ := reg.Get(ctx, "s1")
	tp, tv := tee()
	if err := store.AddItem(ctx, tp, tv, 2, 0); err != nil {
		t.Fatalf("add: %v", err)
	}

	now = now.Add(5 * time.Minute)
	fresh, _ := reg.Get(ctx, "s2")
	if fresh == nil || reg.Len() != 1 {
		t.Fatalf("expected idle store to be evicted, have %d", reg.Len())
	}

	reloaded, _ := reg.Get(ctx, "s1")
	if reloaded == store {
		t.Fatalf("expected a fresh store after eviction")
	}
	if items := reloaded.Items(); len(items) != 1 || items[0].Quantity != 2 {
		t.Fatalf("state should reload from the persister, got %+v", items)
	}
}

// stallingPersister blocks loads of one key until released.
type stallingPersister struct {
	*MemoryPersister
	stallKey string
	entered  chan struct{}
	release  chan struct{}
	loads    atomic.Int32
}

func (p *stallingPersister) Load(ctx context.Context, key string) ([]LineItem, error) {
	if key == p.stallKey {
		p.loads.Add(1)
		p.entered <- struct{}{}
		<-p.release
	}
	return p.MemoryPersister.Load(ctx, key)
}

func TestRegistrySlowLoadDoesNotBlockOtherSessions(t *testing.T) {
	t.Parallel()
	mem := NewMemoryPersister()
	persister := &stallingPersister{
		MemoryPersister: mem,
		stallKey:        mem.Key("slow"),
		entered:         make(chan struct{}, 1),
		release:         make(chan struct{}),
	}
	reg, _ := NewRegistry(RegistryParams{Persister: persister})
	ctx := context.Background()

	stores := make([]*Store, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		stores[0], _ = reg.Get(ctx, "slow")
	}()
	<-persister.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		stores[1], _ = reg.Get(ctx, "slow")
	}()

	done := make(chan struct{})
	go func() {
		if _, err := reg.Get(ctx, "fast"); err != nil {
			t.Errorf("get fast: %v", err)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("another session waited on a stalled load")
	}

	close(persister.release)
	wg.Wait()
	if stores[0] == nil || stores[0] != stores[1] {
		t.Fatalf("concurrent first requests must share one store")
	}
	if n := persister.loads.Load(); n != 1 {
		t.Fatalf("expected one load for the stalled session, got %d", n)
	}
}
