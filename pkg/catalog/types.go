package catalog

import "time"

// Product mirrors the hosted store's product payload.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle,omitempty"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	Images      []Image   `json:"images,omitempty"`
	RibbonText  string    `json:"ribbon_text,omitempty"`
	Purchasable bool      `json:"purchasable"`
	Variants    []Variant `json:"variants"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

type Image struct {
	URL string `json:"url"`
}

// Variant prices are minor currency units.
type Variant struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	PriceInCents      int64  `json:"price_in_cents"`
	SalePriceInCents  *int64 `json:"sale_price_in_cents,omitempty"`
	ManageInventory   bool   `json:"manage_inventory"`
	InventoryQuantity int    `json:"inventory_quantity"`
	Weight            *int   `json:"weight,omitempty"`
	ImageURL          string `json:"image_url,omitempty"`
}

// ProductsRequest pages through the catalog.
type ProductsRequest struct {
	Limit  int
	Offset int
	Search string
}

type ProductsPage struct {
	Products []Product `json:"products"`
	Count    int       `json:"count"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// QuantitiesRequest asks for live inventory of every variant of the products.
type QuantitiesRequest struct {
	Fields     string
	ProductIDs []string
}

type VariantQuantity struct {
	ID                string `json:"id"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

type QuantitiesResponse struct {
	Variants []VariantQuantity `json:"variants"`
}

// QuantityMap indexes the response by variant id.
func (r QuantitiesResponse) QuantityMap() map[string]int {
	out := make(map[string]int, len(r.Variants))
	for _, v := range r.Variants {
		out[v.ID] = v.InventoryQuantity
	}
	return out
}
