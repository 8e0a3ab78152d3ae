package agenda

import (
	"regexp"
	"strings"
)

// docNumberPatterns match explicitly typed document references.
var docNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Ordinance|Ord\.?)\s+(?:No\.?\s*)?(\d{4}-\d+)`),
	regexp.MustCompile(`(?i)(?:Resolution|Res\.?)\s+(?:No\.?\s*)?(\d{4}-\d+)`),
	regexp.MustCompile(`(?i)(?:Contract|Agreement)\s+(?:No\.?\s*)?(\d{4}-\d+)`),
}

var standaloneNumberRe = regexp.MustCompile(`\b(\d{4}-\d+)\b`)

// DocumentNumbers returns YYYY-NN document numbers mentioned in text: typed
// references first, then bare numbers, without duplicates.
func DocumentNumbers(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, p := range docNumberPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
	}
	for _, m := range standaloneNumberRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return out
}

type typeIndicator struct {
	docType  string
	keywords []string
}

// typeIndicators is checked in order; the first keyword hit decides.
var typeIndicators = []typeIndicator{
	{"Ordinance", []string{"ordinance", "amending", "zoning", "code amendment"}},
	{"Resolution", []string{"resolution", "approving", "authorizing", "accepting"}},
	{"Proclamation", []string{"proclamation", "declaring", "recognizing"}},
	{"Contract", []string{"contract", "agreement", "bid", "purchase"}},
	{"Minutes", []string{"minutes"}},
}

// DocumentType infers the kind of document an item introduces.
func DocumentType(text string) string {
	lower := strings.ToLower(text)
	for _, ti := range typeIndicators {
		for _, kw := range ti.keywords {
			if strings.Contains(lower, kw) {
				return ti.docType
			}
		}
	}
	return "Document"
}

var (
	sponsoredByRe   = regexp.MustCompile(`(?i)(?:Sponsored by|Sponsor:)\s*([^,\n]+)`)
	trailingParenRe = regexp.MustCompile(`\(([^)]+)\)\s*$`)
	officialLineRe  = regexp.MustCompile(`(?im)^[ \t]*((?:Vice[ \t]+Mayor|Commissioner|Mayor)[ \t]+[A-Za-z][A-Za-z \t]*?)[ \t]*$`)
	digitRe         = regexp.MustCompile(`\d`)
)

// Sponsor extracts the sponsoring official from an item's text. An
// honorific found on an official's line is kept so the role can be
// recovered when the name is resolved.
func Sponsor(text string) string {
	if m := sponsoredByRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := trailingParenRe.FindStringSubmatch(text); m != nil && !digitRe.MatchString(m[1]) {
		return strings.TrimSpace(m[1])
	}
	if m := officialLineRe.FindStringSubmatch(text); m != nil {
		return strings.Join(strings.Fields(m[1]), " ")
	}
	return ""
}
