package engine

import "strings"

var termReplacer = strings.NewReplacer(
	"\"", "", "*", "", "(", "", ")", "",
	"+", "", "^", "", ":", "", "?", "",
	"[", "", "]", "", "{", "", "}", "",
	"!", "", ",", "", ";", "",
)

// significantTerms returns the lowercased words of a question worth
// matching against vertex properties: longer than two characters, not a
// stop word, first occurrence only. Hyphens are kept so item codes and
// document numbers survive.
func significantTerms(question string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range strings.Fields(termReplacer.Replace(question)) {
		lower := strings.Trim(strings.ToLower(w), ".'-")
		if len(lower) > 2 && !stopWords[lower] && !seen[lower] {
			seen[lower] = true
			terms = append(terms, lower)
		}
	}
	return terms
}

var stopWords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"from": true, "are": true, "was": true, "were": true, "been": true,
	"being": true, "have": true, "has": true, "had": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true, "can": true,
	"this": true, "that": true, "these": true, "those": true, "what": true,
	"which": true, "who": true, "whom": true, "where": true, "when": true,
	"how": true, "why": true, "not": true, "nor": true, "then": true,
	"than": true, "about": true, "into": true, "between": true,
	"tell": true, "me": true, "all": true, "any": true, "there": true,
	"meeting": true, "city": true, "commission": true,
}
