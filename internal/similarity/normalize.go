package similarity

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// Fold lowercases a string with full Unicode case folding.
func Fold(s string) string {
	return folder.String(s)
}

var (
	punct      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	multiSpace = regexp.MustCompile(`\s{2,}`)
)

// streetTypes are common street-suffix tokens dropped from addresses before
// scoring, so "123 Main Street" and "123 Main St" compare equal.
var streetTypes = map[string]bool{
	"street": true, "st": true,
	"avenue": true, "ave": true, "av": true,
	"road": true, "rd": true,
	"drive": true, "dr": true,
	"boulevard": true, "blvd": true,
	"lane": true, "ln": true,
	"court": true, "ct": true,
	"place": true, "pl": true,
	"way": true, "wy": true,
	"crescent": true, "cres": true,
	"terrace": true, "ter": true,
	"highway": true, "hwy": true,
}

// NormalizeName prepares a business name for scoring: case-fold, strip
// punctuation to whitespace, collapse runs of whitespace. Never used for
// display.
func NormalizeName(name string) string {
	n := Fold(strings.TrimSpace(name))
	n = punct.ReplaceAllString(n, " ")
	n = multiSpace.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// NormalizeAddress is NormalizeName plus removal of street-type tokens.
func NormalizeAddress(addr string) string {
	n := NormalizeName(addr)
	if n == "" {
		return n
	}
	fields := strings.Fields(n)
	kept := fields[:0]
	for _, f := range fields {
		if !streetTypes[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

var nonDigits = regexp.MustCompile(`\D+`)

// NormalizePhone reduces a phone number to its digits.
func NormalizePhone(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}
