// Package textnorm folds Vietnamese text to a lowercase, diacritic-free form so that
// "Điện thoại dưới 10 triệu" and "dien thoai duoi 10 trieu" compare equal.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, removes combining marks and maps đ to d.
// Punctuation and spacing are preserved.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	// transform.Chain is stateful, so a fresh chain is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	return strings.NewReplacer("đ", "d", "Đ", "d").Replace(out)
}

// Normalize returns the NFC, lowercase, whitespace-collapsed form of s.
// Unlike Fold it keeps diacritics.
func Normalize(s string) string {
	s = norm.NFC.String(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// Tokens splits folded text into words, dropping punctuation at token edges.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return fields
}
