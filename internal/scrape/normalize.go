package scrape

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// Trailing parenthesized annotations such as "(750ml)" or "(1.75L)".
	sizeSuffix = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
	multiSpace = regexp.MustCompile(`\s{2,}`)
)

// NormalizeBottleName canonicalizes a free-text bottle name: trims
// surrounding whitespace, strips trailing parenthesized size/packaging
// annotations, collapses internal whitespace and applies title casing.
// The result is stable under re-normalization.
func NormalizeBottleName(raw string) string {
	n := strings.TrimSpace(raw)
	for {
		stripped := sizeSuffix.ReplaceAllString(n, "")
		if stripped == n {
			break
		}
		n = stripped
	}
	n = multiSpace.ReplaceAllString(n, " ")
	n = cases.Title(language.AmericanEnglish).String(strings.ToLower(n))
	return strings.TrimSpace(n)
}

// ParsePrice parses a currency-prefixed decimal string ("$42.50") into
// integer cents. A missing "$" prefix or malformed amount returns ok=false;
// callers skip the item rather than failing the run.
func ParsePrice(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "$") {
		return 0, false
	}
	s = strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", "")
	if s == "" {
		return 0, false
	}

	dollars := s
	centsStr := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		dollars, centsStr = s[:i], s[i+1:]
		if len(centsStr) != 2 {
			return 0, false
		}
	}
	if dollars == "" {
		dollars = "0"
	}

	var cents int64
	for _, r := range dollars {
		if r < '0' || r > '9' {
			return 0, false
		}
		cents = cents*10 + int64(r-'0')
	}
	cents *= 100
	if centsStr != "" {
		var frac int64
		for _, r := range centsStr {
			if r < '0' || r > '9' {
				return 0, false
			}
			frac = frac*10 + int64(r-'0')
		}
		cents += frac
	}
	return cents, true
}
