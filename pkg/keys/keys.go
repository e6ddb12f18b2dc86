// Package keys derives stable cache keys from asset requests.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// synonyms folds stylistic vocabulary so near-identical prompts land on
// the same normalized form. Replacement is whole-token only.
var synonyms = map[string]string{
	"premium":      "pro",
	"professional": "pro",
	"advanced":     "pro",
	"modern":       "clean",
	"contemporary": "clean",
	"sleek":        "clean",
	"beautiful":    "elegant",
	"stunning":     "elegant",
	"amazing":      "elegant",
}

// NormalizePrompt lowercases, trims, applies the synonym map per token and
// collapses whitespace runs to a single space.
func NormalizePrompt(prompt string) string {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(prompt)))
	for i, tok := range tokens {
		if repl, ok := synonyms[tok]; ok {
			tokens[i] = repl
		}
	}
	return strings.Join(tokens, " ")
}

// Tokenize returns the sorted, deduplicated token set of a normalized prompt.
func Tokenize(normalized string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens
}

// CanonicalizeStyle serializes a style mapping into a canonical text form:
// entries sorted by key, "k=v" pairs joined by ";". A nil or empty mapping
// canonicalizes to the empty string.
func CanonicalizeStyle(style map[string]string) string {
	if len(style) == 0 {
		return ""
	}
	ks := make([]string, 0, len(style))
	for k := range style {
		ks = append(ks, k)
	}
	sort.Strings(ks)

	var b strings.Builder
	for i, k := range ks {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(style[k])
	}
	return b.String()
}

// Derive computes the cache key for (category, prompt, style). The category
// prefix is cosmetic; uniqueness comes from the truncated SHA-256.
func Derive(category, prompt string, style map[string]string) string {
	normalized := NormalizePrompt(prompt)
	canonical := CanonicalizeStyle(style)

	h := sha256.Sum256([]byte(category + "|" + normalized + "|" + canonical))
	return category + "_" + hex.EncodeToString(h[:])[:16]
}
