package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/identitywear/storefront-backend/internal/orders"
	"github.com/identitywear/storefront-backend/pkg/db/models"
	"github.com/identitywear/storefront-backend/pkg/enums"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

const (
	defaultPendingOrderTTL = 25 * time.Hour
	pendingOrderBatchSize  = 100
)

// OrderTTLJobParams configure the stale pending order sweep.
type OrderTTLJobParams struct {
	Logger  *logger.Logger
	Pending pendingOrderLister
	Orders  orderTransitioner
	TTL     time.Duration
}

type pendingOrderLister interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderTransitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus) (*orders.OrderDTO, error)
}

// NewOrderTTLJob builds the job that cancels orders whose payment was
// abandoned. Cancellation goes through the orders service so the usual
// order_canceled event is emitted.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Pending == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &orderTTLJob{
		logg:    params.Logger,
		pending: params.Pending,
		orders:  params.Orders,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

type orderTTLJob struct {
	logg    *logger.Logger
	pending pendingOrderLister
	orders  orderTransitioner
	ttl     time.Duration
	now     func() time.Time
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

func (j *orderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.pending.ListPendingBefore(ctx, cutoff, pendingOrderBatchSize)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs error
	canceled := 0
	for _, order := range stale {
		_, err := j.orders.Transition(ctx, order.ID, enums.OrderStatusCanceled)
		switch {
		case err == nil:
			canceled++
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			// paid or removed since the query ran
			continue
		default:
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"found":    len(stale),
		"canceled": canceled,
	})
	j.logg.Info(logCtx, "stale pending order sweep complete")
	return errs
}
