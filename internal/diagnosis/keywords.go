package diagnosis

import (
	"strings"
	"unicode"
)

// MaxKeywords caps the keywords kept per analysis
const MaxKeywords = 5

var stopWords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "been": true,
	"before": true, "being": true, "cannot": true, "could": true, "does": true,
	"error": true, "errors": true, "exception": true, "failed": true, "failure": true,
	"from": true, "have": true, "into": true, "just": true, "more": true,
	"must": true, "only": true, "other": true, "over": true, "should": true,
	"some": true, "such": true, "than": true, "that": true, "their": true,
	"them": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "those": true, "uncaught": true, "under": true, "unable": true,
	"very": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "while": true, "will": true, "with": true, "would": true,
	"your": true,
}

// ExtractKeywords lowercases message, drops stop-words and tokens of three
// characters or fewer, and returns up to MaxKeywords unique tokens in order
// of first appearance.
func ExtractKeywords(message string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	keywords := make([]string, 0, MaxKeywords)
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if len(tok) <= 3 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}
