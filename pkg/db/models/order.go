package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/enums"
	"github.com/identitywear/storefront-backend/pkg/types"
)

// Order is a checkout submission. Amounts are minor currency units.
type Order struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             *uuid.UUID            `gorm:"column:user_id;type:uuid;index:orders_user_id_idx"`
	CustomerEmail      string                `gorm:"column:customer_email;not null"`
	Status             enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending'"`
	Currency           string                `gorm:"column:currency;type:text;not null;default:'NOK'"`
	SubtotalAmount     int64                 `gorm:"column:subtotal_amount;not null"`
	ShippingCost       int64                 `gorm:"column:shipping_cost;not null;default:0"`
	TaxAmount          int64                 `gorm:"column:tax_amount;not null;default:0"`
	TotalAmount        int64                 `gorm:"column:total_amount;not null"`
	ShippingMethodID   string                `gorm:"column:shipping_method_id"`
	ShippingMethodName string                `gorm:"column:shipping_method_name"`
	ShippingAddress    types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	PaymentMethod      string                `gorm:"column:payment_method;type:text;not null;default:'stripe'"`
	PaymentSessionID   *string               `gorm:"column:payment_session_id;index:orders_payment_session_id_idx"`
	PaidAt             *time.Time            `gorm:"column:paid_at"`
	Items              []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem snapshots a cart line at purchase time.
type OrderItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID `gorm:"column:order_id;type:uuid;not null;index:order_items_order_id_idx"`
	ProductID       string    `gorm:"column:product_id;not null"`
	ProductTitle    string    `gorm:"column:product_title;not null"`
	VariantID       string    `gorm:"column:variant_id;not null"`
	VariantTitle    string    `gorm:"column:variant_title"`
	Quantity        int       `gorm:"column:quantity;not null"`
	PriceAtPurchase int64     `gorm:"column:price_at_purchase;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}
