package cart

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"omitempty,min=1,max=99"`
}

// Quantity below 1 is accepted and ignored by the cart.
type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}
