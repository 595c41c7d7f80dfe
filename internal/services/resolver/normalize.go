package resolver

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// legalForms are removed wherever they appear. NFKC has already turned ㈜ into (주).
var legalForms = []string{"(주)", "(유)", "(사)", "(재)", "주식회사", "유한회사", "유한책임회사"}

// trailingForms are dropped from the end of the token list
var trailingForms = map[string]bool{
	"co": true, "ltd": true, "inc": true, "corp": true, "corporation": true,
	"limited": true, "company": true, "llc": true, "plc": true,
}

// Normalize folds a company name into the form used for fuzzy comparison.
func Normalize(name string) string {
	s := norm.NFKC.String(name)
	s = width.Fold.String(s)
	s = strings.ToLower(s)

	for _, form := range legalForms {
		s = strings.ReplaceAll(s, form, " ")
	}

	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})

	full := strings.Join(tokens, "")
	for len(tokens) > 1 && trailingForms[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}

	if stripped := strings.Join(tokens, ""); stripped != "" {
		return stripped
	}
	return full
}

// Similarity scores two normalized names in [0, 1].
// Containment scores the rune-length ratio; anything else is edit-distance based.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	la, lb := len([]rune(a)), len([]rune(b))
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return float64(min(la, lb)) / float64(max(la, lb))
	}

	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(max(la, lb))
}
