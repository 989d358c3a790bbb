package services

import (
	"strings"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var upper = cases.Upper(language.Und)

// NormalizeCode folds a user-typed referral or discount code to its stored form:
// transliterated to ASCII, trimmed and upper-cased.
func NormalizeCode(code string) string {
	return upper.String(strings.TrimSpace(unidecode.Unidecode(code)))
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return s != ""
}
