package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/db/models"
	"github.com/identitywear/storefront-backend/pkg/enums"
	"github.com/identitywear/storefront-backend/pkg/types"
)

// CreateInput carries a validated checkout submission. Amounts are minor units.
type CreateInput struct {
	UserID             *uuid.UUID
	Email              string
	Address            types.ShippingAddress
	Currency           string
	ShippingMethodID   string
	ShippingMethodName string
	Subtotal           int64
	Shipping           int64
	Tax                int64
	Total              int64
	PaymentMethod      string
	Items              []ItemInput
}

// ItemInput snapshots one cart line.
type ItemInput struct {
	ProductID    string
	ProductTitle string
	VariantID    string
	VariantTitle string
	Quantity     int
	UnitPrice    int64
}

// OrderDTO is the shopper-facing view of an order.
type OrderDTO struct {
	ID                 uuid.UUID             `json:"id"`
	UserID             *uuid.UUID            `json:"user_id,omitempty"`
	Email              string                `json:"email"`
	Status             enums.OrderStatus     `json:"status"`
	Currency           string                `json:"currency"`
	SubtotalAmount     int64                 `json:"subtotal_amount"`
	ShippingCost       int64                 `json:"shipping_cost"`
	TaxAmount          int64                 `json:"tax_amount"`
	TotalAmount        int64                 `json:"total_amount"`
	ShippingMethodID   string                `json:"shipping_method_id,omitempty"`
	ShippingMethodName string                `json:"shipping_method_name,omitempty"`
	ShippingAddress    types.ShippingAddress `json:"shipping_address"`
	PaymentMethod      string                `json:"payment_method"`
	PaidAt             *time.Time            `json:"paid_at,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	Items              []OrderItemDTO        `json:"items"`
}

type OrderItemDTO struct {
	ProductID       string `json:"product_id"`
	ProductTitle    string `json:"product_title"`
	VariantID       string `json:"variant_id"`
	VariantTitle    string `json:"variant_title,omitempty"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase int64  `json:"price_at_purchase"`
}

// OrderPage is one page of a shopper's order history, newest first.
type OrderPage struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func toDTO(order *models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ProductID:       item.ProductID,
			ProductTitle:    item.ProductTitle,
			VariantID:       item.VariantID,
			VariantTitle:    item.VariantTitle,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
		})
	}
	return OrderDTO{
		ID:                 order.ID,
		UserID:             order.UserID,
		Email:              order.CustomerEmail,
		Status:             order.Status,
		Currency:           order.Currency,
		SubtotalAmount:     order.SubtotalAmount,
		ShippingCost:       order.ShippingCost,
		TaxAmount:          order.TaxAmount,
		TotalAmount:        order.TotalAmount,
		ShippingMethodID:   order.ShippingMethodID,
		ShippingMethodName: order.ShippingMethodName,
		ShippingAddress:    order.ShippingAddress,
		PaymentMethod:      order.PaymentMethod,
		PaidAt:             order.PaidAt,
		CreatedAt:          order.CreatedAt,
		Items:              items,
	}
}

func normalizeCurrency(value string) string {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return "NOK"
	}
	return value
}
