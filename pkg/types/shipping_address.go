package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ShippingAddress is the address a shopper types at checkout, stored as JSON on
// the order row together with the contact email.
type ShippingAddress struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Phone     string `json:"phone,omitempty"`
}

// LocationKey captures the fields that decide shipping: a change in any of them
// invalidates the current rates.
func (a ShippingAddress) LocationKey() string {
	return strings.Join([]string{
		strings.TrimSpace(a.Address),
		strings.TrimSpace(a.City),
		strings.TrimSpace(a.Zip),
		strings.TrimSpace(a.Country),
	}, "|")
}

// Value serializes the address to JSON.
func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan decodes JSONB into the address struct.
func (a *ShippingAddress) Scan(value interface{}) error {
	if value == nil {
		*a = ShippingAddress{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, a)
}

// asJSON accepts the column types drivers hand back for json and jsonb.
func asJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported address column type %T", value)
	}
}
