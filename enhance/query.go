// Package enhance appends the canonical agenda listing to answers for
// questions that ask for every item of a meeting.
package enhance

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/brunobiangulo/agendagraph/normalize"
)

var completenessPatterns = []*regexp.Regexp{
	regexp.MustCompile(`all.*items.*agenda`),
	regexp.MustCompile(`complete.*agenda`),
	regexp.MustCompile(`agenda.*items.*presented`),
	regexp.MustCompile(`items.*discussed.*meeting`),
	regexp.MustCompile(`all.*resolutions?.*ordinances?`),
	regexp.MustCompile(`complete.*list.*items`),
}

// IsCompletenessQuery reports whether q asks for an exhaustive listing of
// a meeting's items rather than a pointed lookup.
func IsCompletenessQuery(q string) bool {
	lower := strings.ToLower(q)
	for _, re := range completenessPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

var months = map[string]int{
	"january": 1, "jan": 1, "february": 2, "feb": 2, "march": 3, "mar": 3,
	"april": 4, "apr": 4, "may": 5, "june": 6, "jun": 6, "july": 7, "jul": 7,
	"august": 8, "aug": 8, "september": 9, "sep": 9, "sept": 9,
	"october": 10, "oct": 10, "november": 11, "nov": 11, "december": 12, "dec": 12,
}

var (
	monthNameDateRe = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	dottedDateRe    = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	slashDateRe     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	isoDateRe       = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
)

// ExtractDate finds the meeting date a question refers to. Recognised
// forms, tried in order:
//
//	January 9, 2024 / Jan 9 2024
//	9.1.2024   (day first)
//	1/9/2024   (month first)
//	2024-01-09
//
// Impossible dates are skipped so a later form can still match.
func ExtractDate(q string) (normalize.Date, bool) {
	if m := monthNameDateRe.FindStringSubmatch(q); m != nil {
		if d, ok := date(m[3], strconv.Itoa(months[strings.ToLower(m[1])]), m[2]); ok {
			return d, true
		}
	}
	if m := dottedDateRe.FindStringSubmatch(q); m != nil {
		if d, ok := date(m[3], m[2], m[1]); ok {
			return d, true
		}
	}
	if m := slashDateRe.FindStringSubmatch(q); m != nil {
		if d, ok := date(m[3], m[1], m[2]); ok {
			return d, true
		}
	}
	if m := isoDateRe.FindStringSubmatch(q); m != nil {
		if d, ok := date(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	return normalize.Date{}, false
}

func date(year, month, day string) (normalize.Date, bool) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	nd, err := normalize.NewDate(y, m, d)
	if err != nil {
		return normalize.Date{}, false
	}
	return nd, true
}
