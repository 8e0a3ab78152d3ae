package graph

import (
	"regexp"
	"sort"
	"strings"
)

// Reference kinds carried on REFERENCES edges.
const (
	RefAmends     = "amends"
	RefRepeals    = "repeals"
	RefReferences = "references"
)

// Reference is a citation of another ordinance or resolution.
type Reference struct {
	DocumentNumber string `json:"document_number"`
	Type           string `json:"reference_type"`
	Context        string `json:"context"`
}

var referencePatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{RefAmends, regexp.MustCompile(`(?i)\b(?:amends?|amending)\s+(?:Ordinance|Resolution)\s+(?:No\.?\s*)?(\d{4}-\d+)`)},
	{RefRepeals, regexp.MustCompile(`(?i)\b(?:repeals?|repealing)\s+(?:Ordinance|Resolution)\s+(?:No\.?\s*)?(\d{4}-\d+)`)},
	{RefReferences, regexp.MustCompile(`(?i)\b(?:pursuant\s+to|per|under)\s+(?:Ordinance|Resolution)\s+(?:No\.?\s*)?(\d{4}-\d+)`)},
}

// ExtractReferences finds citations of other documents in text. A document
// cited several ways keeps the first kind found, checked in the order
// amends, repeals, references.
func ExtractReferences(text string) []Reference {
	var out []Reference
	seen := make(map[string]bool)
	for _, p := range referencePatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			if seen[m[1]] {
				continue
			}
			seen[m[1]] = true
			out = append(out, Reference{DocumentNumber: m[1], Type: p.kind, Context: m[0]})
		}
	}
	return out
}

var topicKeywords = map[string][]string{
	"zoning":         {"zoning", "land use", "development"},
	"budget":         {"budget", "fiscal", "appropriation", "expenditure"},
	"public safety":  {"police", "fire", "emergency", "safety"},
	"infrastructure": {"road", "sewer", "water", "utility", "infrastructure"},
	"parks":          {"park", "recreation", "green space"},
	"transportation": {"traffic", "transportation", "parking", "transit"},
}

// Topics returns the sorted topics whose keywords occur in text.
func Topics(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for topic, kws := range topicKeywords {
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				out = append(out, topic)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
