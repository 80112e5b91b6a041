package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
)

type testAddress struct {
	Zip string `json:"zip" validate:"required,len=4"`
}

type testPayload struct {
	Email   string      `json:"email" validate:"required,email"`
	Method  string      `json:"method" validate:"omitempty,oneof=stripe"`
	Address testAddress `json:"address"`
}

func decode(t *testing.T, body string) (testPayload, *pkgerrors.Error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var payload testPayload
	err := DecodeJSONBody(req, &payload)
	return payload, pkgerrors.As(err)
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	payload, err := decode(t, `{"email":"kari@example.no","method":"stripe","address":{"zip":"0150"}}`)
	require.Nil(t, err)
	assert.Equal(t, "0150", payload.Address.Zip)
}

func TestDecodeJSONBodyRejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "empty", body: ``, message: "request body is required"},
		{name: "unknown field", body: `{"email":"a@b.no","address":{"zip":"0150"},"admin":true}`, message: "invalid request body"},
		{name: "trailing object", body: `{"email":"a@b.no","address":{"zip":"0150"}}{"email":"c@d.no"}`, message: "request body must hold a single JSON object"},
	}
	for _, tt := range tests {
		_, err := decode(t, tt.body)
		require.NotNil(t, err, tt.name)
		assert.Equal(t, pkgerrors.CodeValidation, err.Code(), tt.name)
		assert.Equal(t, tt.message, err.Message(), tt.name)
	}
}

func TestDecodeJSONBodyReportsNestedFields(t *testing.T) {
	_, err := decode(t, `{"email":"not-an-email","method":"paypal","address":{"zip":"12345"}}`)
	require.NotNil(t, err)
	details, ok := err.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid email", details["email"])
	assert.Equal(t, "must be one of: stripe", details["method"])
	assert.Equal(t, "must be exactly 4 characters", details["address.zip"])
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&on_sale=true&min_price=9900&bad=x&neg=-1", nil)

	page, err := ParseQueryInt(req, "page", 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, page)
	_, err = ParseQueryInt(req, "page", 1, 1, 2)
	assert.Error(t, err)

	onSale, err := ParseQueryBool(req, "on_sale")
	require.NoError(t, err)
	assert.True(t, onSale)
	missing, err := ParseQueryBool(req, "in_stock")
	require.NoError(t, err)
	assert.False(t, missing)
	_, err = ParseQueryBool(req, "bad")
	assert.Error(t, err)

	cents, err := ParseQueryCents(req, "min_price")
	require.NoError(t, err)
	require.NotNil(t, cents)
	assert.Equal(t, int64(9900), *cents)
	none, err := ParseQueryCents(req, "max_price")
	require.NoError(t, err)
	assert.Nil(t, none)
	_, err = ParseQueryCents(req, "neg")
	assert.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "blå genser", SanitizeString("  blå \t  genser \n", 0))
	assert.Equal(t, "blå", SanitizeString("blå genser", 3))
	assert.Equal(t, "hoodie", SanitizeString("hoodie", 100))
}
