package enums

import (
	"fmt"
	"slices"
)

// member reports whether v is one of the declared values of its enum.
func member[T ~string](values []T, v T) bool {
	return slices.Contains(values, v)
}

// parse resolves raw into one of values, naming label in the error.
func parse[T ~string](values []T, raw, label string) (T, error) {
	if v := T(raw); member(values, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", label, raw)
}
