package enums

import (
	"fmt"
	"slices"
	"strings"
)

func member[T ~string](v T, set []T) bool {
	return slices.Contains(set, v)
}

// lookup matches raw against set after trimming and lower-casing it.
func lookup[T ~string](kind, raw string, set []T) (T, error) {
	want := T(strings.ToLower(strings.TrimSpace(raw)))
	if member(want, set) {
		return want, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
