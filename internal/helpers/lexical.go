package helpers

import (
	"regexp"
	"sort"
	"strings"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "have": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "why": true, "how": true, "does": true,
	"this": true, "that": true, "with": true, "from": true, "they": true,
	"will": true, "would": true, "there": true, "their": true, "about": true,
	"into": true, "than": true, "them": true, "then": true, "been": true,
	"were": true, "being": true, "more": true, "most": true, "some": true,
	"such": true, "only": true, "other": true, "over": true, "very": true,
}

var wordPattern = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

// IsStopWord reports whether a lower-cased token carries no topical signal.
func IsStopWord(w string) bool { return stopWords[w] }

// ExtractKeywords returns up to limit lower-cased keywords from text, most
// frequent first. Stop words and tokens shorter than 3 letters are dropped.
func ExtractKeywords(text string, limit int) []string {
	counts := make(map[string]int)
	var order []string
	for _, raw := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if stopWords[raw] {
			continue
		}
		if counts[raw] == 0 {
			order = append(order, raw)
		}
		counts[raw]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	return order
}

// RelevanceScore computes the normalized lexical overlap between a document
// and a keyword set. A keyword found in the body counts 1.0 and in the title
// 1.5, normalized so a document matching every keyword in both places scores
// 1.0. Empty keyword sets score 0.
func RelevanceScore(title, body string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	titleLower := strings.ToLower(title)
	bodyLower := strings.ToLower(body)
	var overlap float64
	for _, kw := range keywords {
		if strings.Contains(bodyLower, kw) {
			overlap += 1.0
		}
		if strings.Contains(titleLower, kw) {
			overlap += 1.5
		}
	}
	return overlap / (2.5 * float64(len(keywords)))
}
