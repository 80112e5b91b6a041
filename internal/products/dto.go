package products

import (
	"github.com/identitywear/storefront-backend/internal/cart"
	"github.com/identitywear/storefront-backend/pkg/catalog"
	"github.com/identitywear/storefront-backend/pkg/currency"
)

// SortOrder names a listing order.
type SortOrder string

const (
	SortNewest    SortOrder = "newest"
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
	SortTitleAsc  SortOrder = "title_asc"
)

// Valid reports whether s is a known sort order.
func (s SortOrder) Valid() bool {
	switch s {
	case SortNewest, SortPriceAsc, SortPriceDesc, SortTitleAsc:
		return true
	}
	return false
}

// ListParams selects one page of the catalog and narrows it in memory.
// Prices are minor units.
type ListParams struct {
	Page          int
	Search        string
	OnSaleOnly    bool
	InStockOnly   bool
	MinPriceCents *int64
	MaxPriceCents *int64
	Sort          SortOrder
}

// ListResult is one catalog page after filtering.
type ListResult struct {
	Products []ProductDTO `json:"products"`
	Page     int          `json:"page"`
	HasMore  bool         `json:"has_more"`
}

// ProductDTO is a catalog product with live inventory and display prices.
type ProductDTO struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle,omitempty"`
	Description   string          `json:"description,omitempty"`
	Image         string          `json:"image,omitempty"`
	Images        []catalog.Image `json:"images,omitempty"`
	RibbonText    string          `json:"ribbon_text,omitempty"`
	Purchasable   bool            `json:"purchasable"`
	Variants      []VariantDTO    `json:"variants"`
	DisplayPrice  string          `json:"display_price"`
	OriginalPrice string          `json:"original_price,omitempty"`
	OnSale        bool            `json:"on_sale"`
	InStock       bool            `json:"in_stock"`
}

type VariantDTO struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	PriceInCents      int64  `json:"price_in_cents"`
	SalePriceInCents  *int64 `json:"sale_price_in_cents,omitempty"`
	ManageInventory   bool   `json:"manage_inventory"`
	InventoryQuantity int    `json:"inventory_quantity"`
	Weight            *int   `json:"weight,omitempty"`
	ImageURL          string `json:"image_url,omitempty"`
}

func toDTO(p catalog.Product, formatter currency.Formatter) ProductDTO {
	dto := ProductDTO{
		ID:          p.ID,
		Title:       p.Title,
		Subtitle:    p.Subtitle,
		Description: p.Description,
		Image:       p.Image,
		Images:      p.Images,
		RibbonText:  p.RibbonText,
		Purchasable: p.Purchasable,
		Variants:    make([]VariantDTO, 0, len(p.Variants)),
	}
	for _, v := range p.Variants {
		dto.Variants = append(dto.Variants, VariantDTO(v))
		if !v.ManageInventory || v.InventoryQuantity > 0 {
			dto.InStock = true
		}
	}
	if len(p.Variants) > 0 {
		display := toCartVariant(p.Variants[0])
		dto.DisplayPrice = formatter.Format(display.EffectivePrice())
		if display.OnSale() {
			dto.OnSale = true
			dto.OriginalPrice = formatter.Format(display.PriceCents)
		}
	}
	return dto
}

func toCartProduct(p catalog.Product) cart.Product {
	return cart.Product{
		ID:       p.ID,
		Title:    p.Title,
		Subtitle: p.Subtitle,
		Image:    p.Image,
	}
}

func toCartVariant(v catalog.Variant) cart.Variant {
	return cart.Variant{
		ID:                v.ID,
		Title:             v.Title,
		PriceCents:        v.PriceInCents,
		SalePriceCents:    v.SalePriceInCents,
		ManageInventory:   v.ManageInventory,
		InventoryQuantity: v.InventoryQuantity,
		WeightGrams:       v.Weight,
	}
}

// displayPrice is the effective price of the first variant, which is what
// the product card shows.
func displayPrice(p catalog.Product) (int64, bool) {
	if len(p.Variants) == 0 {
		return 0, false
	}
	return toCartVariant(p.Variants[0]).EffectivePrice(), true
}
