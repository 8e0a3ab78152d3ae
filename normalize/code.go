// Package normalize canonicalizes the identifiers that appear across
// meeting records: agenda item codes and meeting dates.
package normalize

import (
	"regexp"
	"strings"
)

var (
	spacedDash     = regexp.MustCompile(`(?i)\b([A-Z])\s*(\.?)\s*-\s*(\d)`)
	letterDotDash  = regexp.MustCompile(`(?i)([A-Z])\.(-)`)
	letterDotDigit = regexp.MustCompile(`(?i)([A-Z])\.(\d)`)
	letterDigit    = regexp.MustCompile(`(?i)([A-Z])(\d)`)

	// A code must not be glued to a preceding letter or digit, so "COVID-19"
	// and "2024-01" never read as codes.
	embeddedCode = regexp.MustCompile(`(?i)(?:^|[^A-Z0-9])([A-Z])-(\d+)(?:$|[^0-9])`)
	looseRe      = regexp.MustCompile(`(?i)^[A-Z]-\d+$`)
	canonicalRe  = regexp.MustCompile(`^[A-Z]-\d+$`)
)

// Code returns the canonical LETTER-NUMBER form of an agenda item code.
// The letter is always uppercased.
//
//	"E.-1."              -> "E-1"
//	"E.1"                -> "E-1"
//	"E1"                 -> "E-1"
//	"e - 1"              -> "E-1"
//	"Item E-1"           -> "E-1"
//	"(Agenda Item: E-1)" -> "E-1"
//
// Input without a letter-number pair is returned unchanged; callers treat
// that as "no code found".
func Code(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, ". \t\r\n")
	s = spacedDash.ReplaceAllString(s, "${1}${2}-${3}")
	s = letterDotDash.ReplaceAllString(s, "$1$2")
	s = letterDotDigit.ReplaceAllString(s, "$1-$2")
	s = strings.ReplaceAll(s, ".", "")
	s = letterDigit.ReplaceAllString(s, "$1-$2")

	if looseRe.MatchString(s) {
		return strings.ToUpper(s)
	}
	m := embeddedCode.FindStringSubmatch(s)
	if m == nil {
		return raw
	}
	return strings.ToUpper(m[1]) + "-" + m[2]
}

// Valid reports whether code is already in canonical form.
func Valid(code string) bool {
	return canonicalRe.MatchString(code)
}

var (
	itemListSplit = regexp.MustCompile(`(?i)\s+and\s+|,`)
	listCodeRe    = regexp.MustCompile(`([A-Z])\.?-?(\d+)\.?|(\d+)-(\d+)`)
)

// ItemCodes extracts every item code from a label such as "F-7 and F-10",
// "E-5 E-6 E-7" or "E-1, E-2". Letter codes are canonicalized, numeric
// codes ("2-1") are kept verbatim. Order is preserved and duplicates dropped.
func ItemCodes(info string) []string {
	var codes []string
	seen := make(map[string]bool)
	for _, part := range itemListSplit.Split(info, -1) {
		for _, m := range listCodeRe.FindAllStringSubmatch(part, -1) {
			var code string
			if m[1] != "" {
				code = m[1] + "-" + m[2]
			} else {
				code = m[3] + "-" + m[4]
			}
			if !seen[code] {
				seen[code] = true
				codes = append(codes, code)
			}
		}
	}
	return codes
}
