package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when a pending order is written at submission.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID  `json:"order_id"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	CustomerEmail string     `json:"customer_email"`
	Currency      string     `json:"currency"`
	TotalAmount   int64      `json:"total_amount"`
	ItemCount     int        `json:"item_count"`
}

// OrderStatusChangedEvent carries a pending order's move into a final status.
type OrderStatusChangedEvent struct {
	OrderID          uuid.UUID         `json:"order_id"`
	Status           enums.OrderStatus `json:"status"`
	PaymentSessionID string            `json:"payment_session_id,omitempty"`
	TotalAmount      int64             `json:"total_amount"`
	ChangedAt        time.Time         `json:"changed_at"`
}
