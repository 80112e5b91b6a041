package wishlist

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

const (
	defaultMaxTrackers = 10000
	// another API instance may have changed the rows since the last load
	defaultMaxAge = 30 * time.Second
)

// Service exposes wishlist operations for authenticated users.
type Service interface {
	List(ctx context.Context, userID *uuid.UUID) ([]ItemDTO, error)
	Contains(ctx context.Context, userID *uuid.UUID, productID string) (bool, error)
	Add(ctx context.Context, userID *uuid.UUID, input AddInput) (ItemDTO, error)
	Remove(ctx context.Context, userID *uuid.UUID, productID string) error
}

// ServiceParams wires a wishlist Service.
type ServiceParams struct {
	Repository  writer
	Logger      *logger.Logger
	MaxTrackers int
	// MaxAge is how long a loaded wishlist is served before it is re-read.
	MaxAge time.Duration
}

type service struct {
	repo        writer
	logg        *logger.Logger
	maxTrackers int
	maxAge      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	trackers map[uuid.UUID]*Tracker
}

// NewService builds a wishlist service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wishlist repository required")
	}
	max := params.MaxTrackers
	if max <= 0 {
		max = defaultMaxTrackers
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &service{
		repo:        params.Repository,
		logg:        params.Logger,
		maxTrackers: max,
		maxAge:      maxAge,
		now:         time.Now,
		trackers:    map[uuid.UUID]*Tracker{},
	}, nil
}

func (s *service) List(ctx context.Context, userID *uuid.UUID) ([]ItemDTO, error) {
	tracker, err := s.tracker(ctx, userID)
	if err != nil {
		return nil, err
	}
	return tracker.Items(), nil
}

func (s *service) Contains(ctx context.Context, userID *uuid.UUID, productID string) (bool, error) {
	tracker, err := s.tracker(ctx, userID)
	if err != nil {
		return false, err
	}
	return tracker.Contains(strings.TrimSpace(productID)), nil
}

func (s *service) Add(ctx context.Context, userID *uuid.UUID, input AddInput) (ItemDTO, error) {
	input.ProductID = strings.TrimSpace(input.ProductID)
	input.ProductName = strings.TrimSpace(input.ProductName)
	if input.ProductID == "" {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if input.ProductPrice < 0 {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "product_price must be non-negative")
	}

	tracker, err := s.tracker(ctx, userID)
	if err != nil {
		return ItemDTO{}, err
	}
	item, err := tracker.Add(ctx, input)
	if err != nil {
		s.logFailure(ctx, "wishlist.add_failed", *userID, input.ProductID, err)
		return ItemDTO{}, err
	}
	return item, nil
}

func (s *service) Remove(ctx context.Context, userID *uuid.UUID, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}

	tracker, err := s.tracker(ctx, userID)
	if err != nil {
		return err
	}
	if err := tracker.Remove(ctx, productID); err != nil {
		s.logFailure(ctx, "wishlist.remove_failed", *userID, productID, err)
		if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			// resync with the store after a failed delete
			if loadErr := tracker.Load(ctx); loadErr != nil {
				s.logFailure(ctx, "wishlist.refetch_failed", *userID, productID, loadErr)
			}
		}
		return err
	}
	return nil
}

func (s *service) tracker(ctx context.Context, userID *uuid.UUID) (*Tracker, error) {
	if userID == nil || *userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to use the wishlist")
	}

	s.mu.Lock()
	tracker, ok := s.trackers[*userID]
	if !ok {
		if len(s.trackers) >= s.maxTrackers {
			s.evictIdleLocked()
		}
		tracker = newTracker(*userID, s.repo)
		tracker.now = s.now
		s.trackers[*userID] = tracker
	}
	s.mu.Unlock()

	if tracker.stale(s.maxAge) {
		if err := tracker.Load(ctx); err != nil {
			return nil, err
		}
	}
	return tracker, nil
}

func (s *service) evictIdleLocked() {
	for id, tracker := range s.trackers {
		if !tracker.busy() {
			delete(s.trackers, id)
		}
	}
}

func (s *service) logFailure(ctx context.Context, msg string, userID uuid.UUID, productID string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithUserID(ctx, userID.String())
	ctx = s.logg.WithField(ctx, "product_id", productID)
	s.logg.Error(ctx, msg, err)
}
