package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/identitywear/storefront-backend/internal/orders"
	"github.com/identitywear/storefront-backend/pkg/enums"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

type orderTransitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus) (*orders.OrderDTO, error)
	TransitionByPaymentSession(ctx context.Context, sessionID string, to enums.OrderStatus) (*orders.OrderDTO, error)
}

type ServiceParams struct {
	Orders orderTransitioner
	Logger *logger.Logger
}

// Service settles orders from Stripe checkout session events.
type Service struct {
	orders orderTransitioner
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	return &Service{orders: params.Orders, logg: params.Logger}, nil
}

// HandleEvent applies the order transition an event implies. Unknown event
// types, sessions without an order and transitions the order already left
// behind are acknowledged without error so Stripe stops redelivering them.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var target enums.OrderStatus
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		target = enums.OrderStatusPaid
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		target = enums.OrderStatusFailed
	case stripe.EventTypeCheckoutSessionExpired:
		target = enums.OrderStatusCanceled
	default:
		return nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}

	// completed fires for delayed methods before the money arrives
	if event.Type == stripe.EventTypeCheckoutSessionCompleted && session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		s.logInfo(ctx, event, session.ID, "stripe.webhook.awaiting_payment")
		return nil
	}

	_, err := s.orders.TransitionByPaymentSession(ctx, session.ID, target)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		if orderID, ok := referencedOrder(&session); ok {
			_, err = s.orders.Transition(ctx, orderID, target)
		}
	}

	switch {
	case err == nil:
		s.logInfo(ctx, event, session.ID, "stripe.webhook.order_"+string(target))
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		// quick checkout sessions never write an order
		s.logInfo(ctx, event, session.ID, "stripe.webhook.no_order")
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		if s.logg != nil {
			ctx = s.logg.WithFields(ctx, map[string]any{"event_id": event.ID, "payment_session": session.ID, "target_status": string(target)})
			s.logg.Warn(ctx, "stripe.webhook.transition_conflict")
		}
		return nil
	default:
		return err
	}
}

func referencedOrder(session *stripe.CheckoutSession) (uuid.UUID, bool) {
	candidates := []string{session.ClientReferenceID}
	if session.Metadata != nil {
		candidates = append(candidates, session.Metadata["order_id"])
	}
	for _, raw := range candidates {
		if id, err := uuid.Parse(raw); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}

func (s *Service) logInfo(ctx context.Context, event *stripe.Event, sessionID, msg string) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":        event.ID,
		"event_type":      string(event.Type),
		"payment_session": sessionID,
	})
	s.logg.Info(ctx, msg)
}
