// Package textsim tokenizes activity text and scores pairwise similarity.
package textsim

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords are dropped during tokenization. The list is deliberately
// short: activity text is terse and most words carry signal.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "into": true,
	"is": true, "it": true, "of": true, "on": true, "or": true, "the": true,
	"to": true, "was": true, "were": true, "with": true, "we": true, "our": true,
	"this": true, "that": true, "about": true,
}

// Normalize lowercases text and strips combining marks, so "Café" and
// "cafe" compare equal. Letters of every script are kept.
func Normalize(s string) string {
	// Chained transformers are stateful, so each call builds its own.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Tokenize splits text into normalized alphanumeric tokens, dropping
// stopwords and single characters. Token order is preserved so callers
// can match multi-word phrases.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Phrase tokenizes s and joins the tokens with single spaces, giving the
// canonical form used to compare keywords.
func Phrase(s string) string {
	return strings.Join(Tokenize(s), " ")
}

// TokenSet returns the distinct tokens of s.
func TokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(s) {
		set[tok] = true
	}
	return set
}

// ContainsPhrase reports whether the token sequence phrase occurs
// contiguously in tokens.
func ContainsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, p := range phrase {
			if tokens[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}

// LeadingSentence returns the first sentence of s: everything before the
// first sentence terminator or line break.
func LeadingSentence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, ".!?\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}
