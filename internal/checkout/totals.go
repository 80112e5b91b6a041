package checkout

import (
	"github.com/identitywear/storefront-backend/internal/cart"
	"github.com/identitywear/storefront-backend/pkg/currency"
)

// ComputeTotals derives checkout amounts from the cart lines, the selected
// shipping option and the tax rate. The tax base is chosen by the caller.
func ComputeTotals(items []cart.LineItem, option *ShippingOption, taxRate float64, base TaxBase) Totals {
	subtotal := cart.Subtotal(items)

	var shipping int64
	if option != nil {
		shipping = currency.MajorFloatToMinor(option.Price)
	}

	taxable := subtotal
	if base == TaxBaseSubtotalAndShipping {
		taxable += shipping
	}
	tax := cart.ApplyRate(taxable, taxRate)

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal + shipping + tax,
		TaxRate:  taxRate,
	}
}
