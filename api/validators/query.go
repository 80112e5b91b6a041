package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func invalidQuery(key, message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{"field": key})
}

// ParseQueryInt returns fallback when key is absent and rejects values
// outside [lo, hi].
func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidQuery(key, "query parameter must be numeric")
	}
	if n < lo || n > hi {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi})
	}
	return n, nil
}

// ParseQueryBool treats an absent flag as false.
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidQuery(key, "query parameter must be a boolean")
	}
	return b, nil
}

// ParseQueryCents reads an optional amount in minor units. Nil means unset.
func ParseQueryCents(r *http.Request, key string) (*int64, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return nil, nil
	}
	cents, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cents < 0 {
		return nil, invalidQuery(key, "price must be a non-negative amount in cents")
	}
	return &cents, nil
}
