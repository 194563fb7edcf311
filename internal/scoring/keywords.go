package scoring

import (
	"sort"
	"strings"
	"unicode"
)

// MinKeywordLength is the longest token that is still discarded.
const MinKeywordLength = 3

// Tokenize lowercases text, splits on whitespace and strips punctuation.
// Empty tokens are dropped; short tokens are kept.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		cleaned := strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}
	return tokens
}

// ExtractKeywords returns the distinct tokens longer than
// MinKeywordLength, sorted.
func ExtractKeywords(text string) []string {
	seen := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		if len(tok) > MinKeywordLength {
			seen[tok] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
