// Package utils provides small helpers shared across layers, independent
// of the marketplace domain.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or not a
// valid integer. Used for lenient query-string pagination values, where a
// garbled limit or offset should fall back rather than fail the request.
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
