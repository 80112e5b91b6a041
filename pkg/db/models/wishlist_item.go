package models

import (
	"time"

	"github.com/google/uuid"
)

// WishlistItem links a shopper to a liked catalog product. Name, image and price
// are copied at like time so the wishlist renders without a catalog call.
type WishlistItem struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:wishlist_user_id_idx;uniqueIndex:wishlist_user_product_key"`
	ProductID    string    `gorm:"column:product_id;not null;uniqueIndex:wishlist_user_product_key"`
	ProductName  string    `gorm:"column:product_name;not null"`
	ProductImage string    `gorm:"column:product_image"`
	ProductPrice int64     `gorm:"column:product_price;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the storefront's singular table name.
func (WishlistItem) TableName() string {
	return "wishlist"
}
