package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/identitywear/storefront-backend/pkg/db/models"
	"github.com/identitywear/storefront-backend/pkg/enums"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/outbox"
	"github.com/identitywear/storefront-backend/pkg/outbox/payloads"
	"github.com/identitywear/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines order-level operations beyond repository reads.
type Service interface {
	CreatePending(ctx context.Context, input CreateInput) (*OrderDTO, error)
	AttachPaymentSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
	Transition(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus) (*OrderDTO, error)
	TransitionByPaymentSession(ctx context.Context, sessionID string, to enums.OrderStatus) (*OrderDTO, error)
	Get(ctx context.Context, orderID uuid.UUID, requester *uuid.UUID) (*OrderDTO, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (OrderPage, error)
}

// ServiceParams groups dependencies for the orders service.
type ServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	Outbox     outboxPublisher
	Now        func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	now    func() time.Time
}

// NewService builds the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repository,
		tx:     params.TxRunner,
		outbox: params.Outbox,
		now:    now,
	}, nil
}

// CreatePending writes the order, its items and an order_created event in one
// transaction.
func (s *service) CreatePending(ctx context.Context, input CreateInput) (*OrderDTO, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:                 uuid.New(),
		UserID:             input.UserID,
		CustomerEmail:      strings.TrimSpace(input.Email),
		Status:             enums.OrderStatusPending,
		Currency:           normalizeCurrency(input.Currency),
		SubtotalAmount:     input.Subtotal,
		ShippingCost:       input.Shipping,
		TaxAmount:          input.Tax,
		TotalAmount:        input.Total,
		ShippingMethodID:   input.ShippingMethodID,
		ShippingMethodName: input.ShippingMethodName,
		ShippingAddress:    input.Address,
		PaymentMethod:      input.PaymentMethod,
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = "stripe"
	}
	order.ShippingAddress.Email = order.CustomerEmail
	for _, item := range input.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:       item.ProductID,
			ProductTitle:    item.ProductTitle,
			VariantID:       item.VariantID,
			VariantTitle:    item.VariantTitle,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.UnitPrice,
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.repo.WithTx(tx).Create(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		order = created
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.UserID, Email: order.CustomerEmail},
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				CustomerEmail: order.CustomerEmail,
				Currency:      order.Currency,
				TotalAmount:   order.TotalAmount,
				ItemCount:     len(order.Items),
			},
			Version: 1,
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}
	dto := toDTO(order)
	return &dto, nil
}

func (s *service) AttachPaymentSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment session id is required")
	}
	if err := s.repo.SetPaymentSession(ctx, orderID, sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if errors.Is(err, ErrPaymentSessionInUse) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment session already used")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach payment session")
	}
	return nil
}

// Transition moves a pending order into a terminal status. Repeating the same
// transition is a no-op that returns the current order.
func (s *service) Transition(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus) (*OrderDTO, error) {
	return s.transition(ctx, func(repo Repository) (*models.Order, error) {
		return repo.FindByID(ctx, orderID)
	}, to)
}

func (s *service) TransitionByPaymentSession(ctx context.Context, sessionID string, to enums.OrderStatus) (*OrderDTO, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment session id is required")
	}
	return s.transition(ctx, func(repo Repository) (*models.Order, error) {
		return repo.FindByPaymentSession(ctx, sessionID)
	}, to)
}

func (s *service) transition(ctx context.Context, load func(Repository) (*models.Order, error), to enums.OrderStatus) (*OrderDTO, error) {
	if !to.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cannot move an order to %s", to))
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := load(repo)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == to {
			result = order
			return nil
		}
		if !order.Status.CanTransitionTo(to) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status cannot change").
				WithDetails(map[string]any{"from": order.Status, "to": to})
		}

		var paidAt *time.Time
		if to == enums.OrderStatusPaid {
			now := s.now().UTC()
			paidAt = &now
		}
		changed, err := repo.UpdateStatus(ctx, order.ID, order.Status, to, paidAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently").
				WithDetails(map[string]any{"to": to})
		}

		eventType, _ := enums.OrderEventForStatus(to)
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.UserID, Email: order.CustomerEmail},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:          order.ID,
				Status:           to,
				PaymentSessionID: derefString(order.PaymentSessionID),
				TotalAmount:      order.TotalAmount,
				ChangedAt:        s.now().UTC(),
			},
			Version: 1,
		}); err != nil {
			return err
		}

		order.Status = to
		order.PaidAt = paidAt
		result = order
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition order")
	}
	dto := toDTO(result)
	return &dto, nil
}

// Get returns an order. Orders placed by a signed-in user are visible only to
// that user; guest orders are visible to anyone holding the id.
func (s *service) Get(ctx context.Context, orderID uuid.UUID, requester *uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != nil && (requester == nil || *requester != *order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	dto := toDTO(order)
	return &dto, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (OrderPage, error) {
	if userID == uuid.Nil {
		return OrderPage{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	rows, next, err := s.repo.ListByUser(ctx, userID, params)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return OrderPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if err != nil {
		return OrderPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := OrderPage{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		page.Orders = append(page.Orders, toDTO(&rows[i]))
	}
	return page, nil
}

func validateCreateInput(input CreateInput) error {
	if strings.TrimSpace(input.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	for _, item := range input.Items {
		if item.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be at least 1").
				WithDetails(map[string]any{"variant_id": item.VariantID})
		}
		if item.UnitPrice < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item price must be non-negative").
				WithDetails(map[string]any{"variant_id": item.VariantID})
		}
	}
	if input.Subtotal < 0 || input.Shipping < 0 || input.Tax < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amounts must be non-negative")
	}
	if input.Total != input.Subtotal+input.Shipping+input.Tax {
		return pkgerrors.New(pkgerrors.CodeValidation, "total must equal subtotal plus shipping plus tax")
	}
	return nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
