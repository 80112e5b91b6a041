// Package settings reads storefront-wide settings maintained by the admin tools.
package settings

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/identitywear/storefront-backend/internal/repo"
	"github.com/identitywear/storefront-backend/pkg/db/models"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

const defaultCacheTTL = time.Minute

// Repository loads the settings row.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Find returns the first settings row, or nil when the table is empty.
func (r *Repository) Find(ctx context.Context) (*models.StoreSettings, error) {
	return repo.FirstOrNil[models.StoreSettings](r.DB(ctx).Order("id ASC"))
}

type settingsFinder interface {
	Find(ctx context.Context) (*models.StoreSettings, error)
}

// ServiceParams groups dependencies for the settings service.
type ServiceParams struct {
	Repository settingsFinder
	// DefaultTaxRate is a fraction, e.g. 0.25.
	DefaultTaxRate float64
	CacheTTL       time.Duration
	Logger         *logger.Logger
}

// Service serves the tax rate with a short cache so every checkout step does
// not hit the database.
type Service struct {
	repo       settingsFinder
	defaultTax float64
	ttl        time.Duration
	logg       *logger.Logger
	now        func() time.Time

	mu       sync.Mutex
	cached   float64
	cachedAt time.Time
	loads    singleflight.Group
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, errors.New("settings repository required")
	}
	if params.DefaultTaxRate < 0 {
		return nil, errors.New("default tax rate must be non-negative")
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{
		repo:       params.Repository,
		defaultTax: params.DefaultTaxRate,
		ttl:        ttl,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

// TaxRate returns the configured rate as a fraction. A missing row, a null
// column or a failed read all fall back to the default; failures are not cached.
func (s *Service) TaxRate(ctx context.Context) float64 {
	if rate, ok := s.fresh(); ok {
		return rate
	}
	// one query at a time, never under mu
	v, _, _ := s.loads.Do("tax_rate", func() (any, error) {
		return s.load(context.WithoutCancel(ctx)), nil
	})
	return v.(float64)
}

func (s *Service) fresh() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cachedAt.IsZero() || s.now().Sub(s.cachedAt) >= s.ttl {
		return 0, false
	}
	return s.cached, true
}

func (s *Service) load(ctx context.Context) float64 {
	row, err := s.repo.Find(ctx)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "settings.tax_rate.load_failed", err)
		}
		return s.defaultTax
	}

	rate := s.defaultTax
	if row != nil && row.TaxRate != nil && *row.TaxRate >= 0 {
		rate = *row.TaxRate / 100
	}
	s.mu.Lock()
	s.cached = rate
	s.cachedAt = s.now()
	s.mu.Unlock()
	return rate
}

// DefaultTaxRate returns the fallback rate.
func (s *Service) DefaultTaxRate() float64 {
	return s.defaultTax
}
