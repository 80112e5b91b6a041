package checkout

import (
	"regexp"
	"strings"

	"github.com/identitywear/storefront-backend/internal/cart"
	"github.com/identitywear/storefront-backend/pkg/types"
)

const (
	FallbackOptionID = "flat_fallback"

	fallbackOptionName     = "Standard Shipping (fallback)"
	fallbackDeliveryWindow = "3-5 days"

	parcelLengthCM = 30
	parcelWidthCM  = 20
	parcelHeightCM = 10

	minPostcodeLength = 4
)

var fallbackSuffix = regexp.MustCompile(`(?i)\s*\(fallback\)\s*`)

// FallbackOption is offered when the rate lookup fails.
func FallbackOption(price float64) ShippingOption {
	return ShippingOption{
		ID:                    FallbackOptionID,
		Name:                  fallbackOptionName,
		Price:                 price,
		EstimatedDeliveryDays: fallbackDeliveryWindow,
	}
}

// MethodName is the option name stored on the order, without the fallback marker.
func MethodName(option ShippingOption) string {
	return strings.TrimSpace(fallbackSuffix.ReplaceAllString(option.Name, " "))
}

// keepSelection returns previous when it is still offered, else the first option.
func keepSelection(options []ShippingOption, previous string) string {
	if len(options) == 0 {
		return ""
	}
	if previous != "" {
		for _, option := range options {
			if option.ID == previous {
				return previous
			}
		}
	}
	return options[0].ID
}

func findOption(options []ShippingOption, id string) *ShippingOption {
	for i := range options {
		if options[i].ID == id {
			option := options[i]
			return &option
		}
	}
	return nil
}

// parcelFor builds the rate request for the cart contents.
func parcelFor(addr types.ShippingAddress, items []cart.LineItem) RateRequest {
	return RateRequest{
		Country:  strings.TrimSpace(addr.Country),
		Postcode: strings.TrimSpace(addr.Zip),
		Weight:   cart.WeightGrams(items),
		Length:   parcelLengthCM,
		Width:    parcelWidthCM,
		Height:   parcelHeightCM,
	}
}

// lookupReady reports whether the address has enough to ask for rates.
func lookupReady(addr types.ShippingAddress) bool {
	zip := strings.TrimSpace(addr.Zip)
	return strings.TrimSpace(addr.Country) != "" &&
		len(zip) >= minPostcodeLength &&
		strings.TrimSpace(addr.City) != "" &&
		strings.TrimSpace(addr.Address) != ""
}
