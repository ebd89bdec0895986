// Package query derives search queries from raw post text. Pure
// heuristics, no model call.
package query

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
)

const (
	// maxFullTextLen bounds the baseline full-text query; search engines
	// handle ~200 chars well.
	maxFullTextLen = 200
	// maxTerms caps the query list to bound downstream search fan-out.
	maxTerms = 5
	// minPhraseLen filters noise phrases ("a", "ok").
	minPhraseLen = 3
	// minCapitalizedLen filters short capitalized runs ("The End").
	minCapitalizedLen = 5
)

var (
	quotedRegex      = regexp.MustCompile(`["']([^"']+)["']`)
	hashtagRegex     = regexp.MustCompile(`#(\w+)`)
	capitalizedRegex = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)\b`)
	sentenceSplit    = regexp.MustCompile(`[.!?]`)
)

// Extract derives an ordered search query from post text. The full text
// (truncated) always comes first, followed by quoted phrases, hashtags,
// and capitalized runs, deduplicated case-insensitively and capped.
func Extract(text string) domain.SearchQuery {
	text = strings.TrimSpace(text)

	q := make(domain.SearchQuery, 0, maxTerms)
	seen := make(map[string]struct{}, maxTerms)

	add := func(term string, kind domain.TermKind) {
		term = strings.TrimSpace(term)
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		q = append(q, domain.QueryTerm{Term: term, Kind: kind})
	}

	// Baseline full-text query, present even for empty input.
	add(truncateFullText(text), domain.TermFullText)

	for _, m := range quotedRegex.FindAllStringSubmatch(text, -1) {
		if phrase := strings.TrimSpace(m[1]); utf8.RuneCountInString(phrase) > minPhraseLen {
			add(phrase, domain.TermQuotedPhrase)
		}
	}

	for _, m := range hashtagRegex.FindAllStringSubmatch(text, -1) {
		add(m[1], domain.TermHashtag)
	}

	for _, m := range capitalizedRegex.FindAllStringSubmatch(text, -1) {
		if utf8.RuneCountInString(m[1]) > minCapitalizedLen {
			add(m[1], domain.TermCapitalized)
		}
	}

	if len(q) > maxTerms {
		q = q[:maxTerms]
	}
	return q
}

// truncateFullText bounds the baseline query. Over-budget texts fall back
// to the first sentence when it fits, otherwise a hard cut at the rune
// budget.
func truncateFullText(text string) string {
	runes := []rune(text)
	if len(runes) <= maxFullTextLen {
		return text
	}
	first := strings.TrimSpace(sentenceSplit.Split(text, 2)[0])
	if n := len([]rune(first)); n > 0 && n <= maxFullTextLen {
		return first
	}
	return strings.TrimSpace(string(runes[:maxFullTextLen]))
}
