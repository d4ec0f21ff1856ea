// Package enums holds the closed string sets stored in the database and
// exchanged over the API. Values are case-sensitive.
package enums

import (
	"fmt"
	"slices"
)

func parse[T ~string](kind string, set []T, raw string) (T, error) {
	if v := T(raw); slices.Contains(set, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
