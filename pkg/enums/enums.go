// Package enums holds the string-backed enumerations stored in Postgres.
package enums

import (
	"fmt"
	"slices"
)

func parseEnum[T ~string](kind, value string, known []T) (T, error) {
	if v := T(value); slices.Contains(known, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
