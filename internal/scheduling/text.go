package scheduling

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips diacritics so keyword checks do not depend
// on how the caller typed (or the transcriber spelled) a word.
func Fold(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	// Transformers keep state, so each call builds its own chain.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, lowered)
	if err != nil {
		return lowered
	}
	return folded
}

// words splits folded text on anything that is not a letter or digit.
func words(folded string) []string {
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func containsWord(folded, word string) bool {
	for _, w := range words(folded) {
		if w == word {
			return true
		}
	}
	return false
}
