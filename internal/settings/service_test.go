package settings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/identitywear/storefront-backend/pkg/db/models"
)

type stubFinder struct {
	row   *models.StoreSettings
	err   error
	calls int
}

func (s *stubFinder) Find(context.Context) (*models.StoreSettings, error) {
	s.calls++
	return s.row, s.err
}

func floatPtr(v float64) *float64 { return &v }

func TestTaxRateFromSettings(t *testing.T) {
	finder := &stubFinder{row: &models.StoreSettings{ID: 1, TaxRate: floatPtr(15)}}
	svc, err := NewService(ServiceParams{Repository: finder, DefaultTaxRate: 0.25})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if got := svc.TaxRate(context.Background()); got != 0.15 {
		t.Fatalf("expected 0.15, got %v", got)
	}
}

func TestTaxRateFallbacks(t *testing.T) {
	cases := map[string]*stubFinder{
		"no row":      {},
		"null column": {row: &models.StoreSettings{ID: 1}},
		"read error":  {err: errors.New("db down")},
	}
	for name, finder := range cases {
		svc, err := NewService(ServiceParams{Repository: finder, DefaultTaxRate: 0.25})
		if err != nil {
			t.Fatalf("%s: new service: %v", name, err)
		}
		if got := svc.TaxRate(context.Background()); got != 0.25 {
			t.Fatalf("%s: expected default 0.25, got %v", name, got)
		}
	}
}

func TestTaxRateCachesSuccessOnly(t *testing.T) {
	finder := &stubFinder{err: errors.New("db down")}
	svc, _ := NewService(ServiceParams{Repository: finder, DefaultTaxRate: 0.25, CacheTTL: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.TaxRate(context.Background())
	svc.TaxRate(context.Background())
	if finder.calls != 2 {
		t.Fatalf("failed reads must not be cached, got %d calls", finder.calls)
	}

	finder.err = nil
	finder.row = &models.StoreSettings{ID: 1, TaxRate: floatPtr(25)}
	svc.TaxRate(context.Background())
	svc.TaxRate(context.Background())
	if finder.calls != 3 {
		t.Fatalf("expected cached value on fourth call, got %d calls", finder.calls)
	}

	now = now.Add(2 * time.Minute)
	svc.TaxRate(context.Background())
	if finder.calls != 4 {
		t.Fatalf("expected refresh after ttl, got %d calls", finder.calls)
	}
}

type gatedFinder struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (f *gatedFinder) Find(context.Context) (*models.StoreSettings, error) {
	f.calls.Add(1)
	f.entered <- struct{}{}
	<-f.release
	return &models.StoreSettings{ID: 1, TaxRate: floatPtr(15)}, nil
}

func TestTaxRateSharesOneQuery(t *testing.T) {
	finder := &gatedFinder{entered: make(chan struct{}, 8), release: make(chan struct{})}
	svc, err := NewService(ServiceParams{Repository: finder, DefaultTaxRate: 0.25})
	require.NoError(t, err)

	rates := make([]float64, 4)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rates[0] = svc.TaxRate(context.Background())
	}()
	<-finder.entered

	for i := 1; i < len(rates); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rates[i] = svc.TaxRate(context.Background())
		}(i)
	}
	// waiters join the running query instead of queueing behind a lock
	time.Sleep(20 * time.Millisecond)
	close(finder.release)
	wg.Wait()

	assert.Equal(t, []float64{0.15, 0.15, 0.15, 0.15}, rates)
	assert.LessOrEqual(t, finder.calls.Load(), int32(2))
	assert.Equal(t, 0.15, svc.TaxRate(context.Background()))
}

func TestRepositoryFind(t *testing.T) {
	dsn := "file:settings_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE online_store_settings (id INTEGER PRIMARY KEY, tax_rate REAL, updated_at DATETIME)`).Error)

	repo := NewRepository(db)
	row, err := repo.Find(context.Background())
	require.NoError(t, err)
	assert.Nil(t, row)

	require.NoError(t, db.Exec(`INSERT INTO online_store_settings (id, tax_rate) VALUES (1, 25)`).Error)
	row, err = repo.Find(context.Background())
	require.NoError(t, err)
	require.NotNil(t, row)
	require.NotNil(t, row.TaxRate)
	assert.Equal(t, 25.0, *row.TaxRate)
}
