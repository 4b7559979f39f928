package catalog

import (
	"strings"
	"unicode"
)

var identifierTokens = map[string]bool{
	"id":         true,
	"key":        true,
	"code":       true,
	"pk":         true,
	"fk":         true,
	"identifier": true,
}

// NormalizeName folds case and trims surrounding whitespace.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NameTokens splits a column or dataset name on separators and camelCase boundaries, lowercased.
// "ID_Client", "clientId" and "CLIENT-ID" all tokenize to the same set.
func NameTokens(name string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(strings.TrimSpace(name))
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if i > 0 && unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return tokens
}

// IsIdentifierToken reports whether a lowercased token marks an identifier.
func IsIdentifierToken(token string) bool {
	return identifierTokens[token]
}

// IsIdentifier reports whether a column name looks like an identifier or key.
func IsIdentifier(name string) bool {
	for _, t := range NameTokens(name) {
		if identifierTokens[t] {
			return true
		}
	}
	return false
}

// Entity returns the non-identifier tokens of an identifier-like name joined with "_".
// It returns "" for a bare identifier such as "id".
func Entity(name string) string {
	var parts []string
	for _, t := range NameTokens(name) {
		if !identifierTokens[t] {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "_")
}

// Singular strips a simple English plural suffix.
func Singular(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return strings.TrimSuffix(word, "ies") + "y"
	case strings.HasSuffix(word, "ss"):
		return word
	case strings.HasSuffix(word, "s") && len(word) > 1:
		return strings.TrimSuffix(word, "s")
	}
	return word
}
