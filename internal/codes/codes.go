// Package codes turns pasted or uploaded text into a clean list of product codes.
package codes

import (
	"strings"
)

func isSeparator(r rune) bool {
	return r == '\n' || r == ',' || r == ';'
}

// Split returns the trimmed, non-empty tokens of raw in their original order.
// Duplicates are kept. Code format is not checked here; the barcode backend owns validity.
func Split(raw string) []string {
	fields := strings.FieldsFunc(raw, isSeparator)
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.TrimSpace(field)
		if token == "" {
			continue
		}
		out = append(out, token)
	}
	return out
}

// Normalize joins the tokens of raw with newlines. Normalizing an already
// normalized list returns it unchanged.
func Normalize(raw string) string {
	return strings.Join(Split(raw), "\n")
}

// Count reports how many tokens raw holds.
func Count(raw string) int {
	return len(Split(raw))
}
