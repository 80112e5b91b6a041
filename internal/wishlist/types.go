package wishlist

import (
	"time"

	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/db/models"
)

// ItemDTO is one liked product as rendered on the wishlist page.
type ItemDTO struct {
	ID           uuid.UUID `json:"id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	ProductImage string    `json:"product_image,omitempty"`
	ProductPrice int64     `json:"product_price"`
	CreatedAt    time.Time `json:"created_at"`
	Pending      bool      `json:"pending,omitempty"`
}

// AddInput is the product snapshot stored with a like.
type AddInput struct {
	ProductID    string `json:"product_id" validate:"required"`
	ProductName  string `json:"product_name" validate:"required"`
	ProductImage string `json:"product_image"`
	ProductPrice int64  `json:"product_price" validate:"gte=0"`
}

func toDTO(row models.WishlistItem) ItemDTO {
	return ItemDTO{
		ID:           row.ID,
		ProductID:    row.ProductID,
		ProductName:  row.ProductName,
		ProductImage: row.ProductImage,
		ProductPrice: row.ProductPrice,
		CreatedAt:    row.CreatedAt,
	}
}
