package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/identitywear/storefront-backend/internal/orders"
	"github.com/identitywear/storefront-backend/pkg/enums"
	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
)

type transitionCall struct {
	sessionID string
	orderID   uuid.UUID
	to        enums.OrderStatus
}

type stubOrders struct {
	bySessionErr error
	byIDErr      error
	calls        []transitionCall
}

func (s *stubOrders) Transition(_ context.Context, orderID uuid.UUID, to enums.OrderStatus) (*orders.OrderDTO, error) {
	s.calls = append(s.calls, transitionCall{orderID: orderID, to: to})
	if s.byIDErr != nil {
		return nil, s.byIDErr
	}
	return &orders.OrderDTO{ID: orderID, Status: to}, nil
}

func (s *stubOrders) TransitionByPaymentSession(_ context.Context, sessionID string, to enums.OrderStatus) (*orders.OrderDTO, error) {
	s.calls = append(s.calls, transitionCall{sessionID: sessionID, to: to})
	if s.bySessionErr != nil {
		return nil, s.bySessionErr
	}
	return &orders.OrderDTO{Status: to}, nil
}

func sessionEvent(t *testing.T, eventType stripe.EventType, session map[string]any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{ID: "evt_1", Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func newTestService(t *testing.T, stub *stubOrders) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Orders: stub})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCompletedMarksOrderPaid(t *testing.T) {
	stub := &stubOrders{}
	svc := newTestService(t, stub)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{"id": "cs_1", "payment_status": "paid"})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(stub.calls) != 1 || stub.calls[0].sessionID != "cs_1" || stub.calls[0].to != enums.OrderStatusPaid {
		t.Fatalf("unexpected calls %+v", stub.calls)
	}
}

func TestCompletedUnpaidWaits(t *testing.T) {
	stub := &stubOrders{}
	svc := newTestService(t, stub)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{"id": "cs_1", "payment_status": "unpaid"})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(stub.calls) != 0 {
		t.Fatalf("unpaid completion must not settle, got %+v", stub.calls)
	}
}

func TestExpiredCancelsAndFallsBackToReference(t *testing.T) {
	orderID := uuid.New()
	stub := &stubOrders{bySessionErr: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	svc := newTestService(t, stub)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionExpired, map[string]any{"id": "cs_2", "client_reference_id": orderID.String()})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(stub.calls) != 2 || stub.calls[1].orderID != orderID || stub.calls[1].to != enums.OrderStatusCanceled {
		t.Fatalf("expected fallback transition by order id, got %+v", stub.calls)
	}
}

func TestAsyncFailureMarksFailed(t *testing.T) {
	stub := &stubOrders{}
	svc := newTestService(t, stub)
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionAsyncPaymentFailed, map[string]any{"id": "cs_3"})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if stub.calls[0].to != enums.OrderStatusFailed {
		t.Fatalf("expected failed, got %+v", stub.calls)
	}
}

func TestSessionWithoutOrderIsAcknowledged(t *testing.T) {
	stub := &stubOrders{bySessionErr: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	svc := newTestService(t, stub)
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{"id": "cs_quick", "payment_status": "paid"})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("quick checkout sessions must be acknowledged, got %v", err)
	}
}

func TestConflictIsAcknowledged(t *testing.T) {
	stub := &stubOrders{bySessionErr: pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid")}
	svc := newTestService(t, stub)
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionExpired, map[string]any{"id": "cs_4"})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("conflicts must be acknowledged, got %v", err)
	}
}

func TestPersistenceFailureIsReturned(t *testing.T) {
	stub := &stubOrders{bySessionErr: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "transition order")}
	svc := newTestService(t, stub)
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{"id": "cs_5", "payment_status": "paid"})
	if err := svc.HandleEvent(context.Background(), event); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error for retry, got %v", err)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	stub := &stubOrders{}
	svc := newTestService(t, stub)
	event := &stripe.Event{ID: "evt_x", Type: stripe.EventTypeCustomerCreated, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	if err := svc.HandleEvent(context.Background(), event); err != nil || len(stub.calls) != 0 {
		t.Fatalf("unexpected handling err=%v calls=%+v", err, stub.calls)
	}
}
