package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims surrounding space and applies NFC so that canonically
// equivalent names collide under the uniqueness constraint.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
