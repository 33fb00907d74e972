package matcher

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// taxIDPattern matches a Chilean RUT with or without thousands dots and check-digit dash
var taxIDPattern = regexp.MustCompile(`\b\d{1,2}\.?\d{3}\.?\d{3}-?[\dkK]\b`)

// fingerprintTokens is how many leading significant tokens form a fingerprint
const fingerprintTokens = 3

// ExtractTaxID returns the first tax-ID-shaped token in s, or ""
func ExtractTaxID(s string) string {
	return taxIDPattern.FindString(s)
}

// NormalizeTaxID strips punctuation and upper-cases a tax ID
func NormalizeTaxID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Fingerprint derives the pattern key of a description: the first three
// upper-cased whitespace tokens longer than two characters, space-joined
func Fingerprint(description string) string {
	tokens := make([]string, 0, fingerprintTokens)
	for _, tok := range strings.Fields(strings.ToUpper(description)) {
		if utf8.RuneCountInString(tok) <= 2 {
			continue
		}
		tokens = append(tokens, tok)
		if len(tokens) == fingerprintTokens {
			break
		}
	}
	return strings.Join(tokens, " ")
}

// prefixRunes returns the first n runes of s
func prefixRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
