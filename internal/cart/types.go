package cart

import "github.com/shopspring/decimal"

// DefaultWeightGrams is assumed for variants without a catalog weight.
const DefaultWeightGrams = 1000

// Product is the catalog product snapshot stored on a line item.
type Product struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Image    string `json:"image,omitempty"`
}

// Variant is a read-only copy of the catalog variant taken at add time.
type Variant struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	PriceCents        int64  `json:"price_in_cents"`
	SalePriceCents    *int64 `json:"sale_price_in_cents,omitempty"`
	ManageInventory   bool   `json:"manage_inventory"`
	InventoryQuantity int    `json:"inventory_quantity"`
	WeightGrams       *int   `json:"weight,omitempty"`
}

// EffectivePrice is the sale price when one is set, otherwise the list price.
// A zero sale price counts as unset.
func (v Variant) EffectivePrice() int64 {
	if v.SalePriceCents != nil && *v.SalePriceCents != 0 {
		return *v.SalePriceCents
	}
	return v.PriceCents
}

// OnSale reports whether a sale price below the list price is active.
func (v Variant) OnSale() bool {
	return v.SalePriceCents != nil && *v.SalePriceCents != 0 && *v.SalePriceCents < v.PriceCents
}

// Weight returns the variant weight in grams, defaulting when unknown.
func (v Variant) Weight() int {
	if v.WeightGrams == nil || *v.WeightGrams <= 0 {
		return DefaultWeightGrams
	}
	return *v.WeightGrams
}

// LineItem is one cart entry. Quantity is always at least 1.
type LineItem struct {
	Product  Product `json:"product"`
	Variant  Variant `json:"variant"`
	Quantity int     `json:"quantity"`
}

// LineTotal is the effective unit price times quantity.
func (li LineItem) LineTotal() int64 {
	return li.Variant.EffectivePrice() * int64(li.Quantity)
}

// Totals are derived amounts in minor currency units.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// NoticeKind classifies a non-fatal outcome of a cart mutation.
type NoticeKind string

const (
	NoticeNone         NoticeKind = ""
	NoticeLimitReached NoticeKind = "limit_reached"
)

// Notice tells the caller a mutation was applied differently than requested.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	VariantID string     `json:"variant_id"`
	Requested int        `json:"requested"`
	Applied   int        `json:"applied"`
	Message   string     `json:"message"`
}

// Subtotal sums effective price times quantity.
func Subtotal(items []LineItem) int64 {
	var subtotal int64
	for _, item := range items {
		subtotal += item.LineTotal()
	}
	return subtotal
}

// ApplyRate returns round(amount * rate), rounding half away from zero.
func ApplyRate(amount int64, rate float64) int64 {
	if amount == 0 || rate == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(rate)).Round(0).IntPart()
}

// WeightGrams sums per-variant weight times quantity.
func WeightGrams(items []LineItem) int {
	total := 0
	for _, item := range items {
		total += item.Variant.Weight() * item.Quantity
	}
	return total
}
