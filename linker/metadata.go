package linker

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Document types produced by DetectType.
const (
	TypeOrdinance  = "Ordinance"
	TypeResolution = "Resolution"
)

// Metadata holds the adoption details found in a document's text.
type Metadata struct {
	DatePassed string `json:"date_passed,omitempty"`
	VoteAyes   *int   `json:"vote_ayes,omitempty"`
	VoteNays   *int   `json:"vote_nays,omitempty"`
	MotionBy   string `json:"motion_by,omitempty"`
	Signatory  string `json:"signatory,omitempty"`
	Purpose    string `json:"purpose,omitempty"`
}

// DetectType classifies a document as an ordinance or a resolution by
// whichever word appears first in its opening text, falling back to the
// directory it was found in.
func DetectType(text, path string) string {
	lead := strings.ToLower(head(text, 500))
	ord := strings.Index(lead, "ordinance")
	res := strings.Index(lead, "resolution")
	switch {
	case ord >= 0 && (res < 0 || ord < res):
		return TypeOrdinance
	case res >= 0:
		return TypeResolution
	case strings.Contains(strings.ToLower(filepath.ToSlash(path)), "resolution"):
		return TypeResolution
	default:
		return TypeOrdinance
	}
}

var (
	ordinanceTitleRe  = regexp.MustCompile(`(?i)(AN?\s+ORDINANCE[^.]+\.)`)
	resolutionTitleRe = regexp.MustCompile(`(?i)(A\s+RESOLUTION[^.]+\.)`)
)

const maxTitleLen = 200

// Title returns the document's formal "AN ORDINANCE ..." or "A RESOLUTION
// ..." sentence, else its first substantive line.
func Title(text, docType string) string {
	re := ordinanceTitleRe
	if docType == TypeResolution {
		re = resolutionTitleRe
	}
	if m := re.FindStringSubmatch(head(text, 2000)); m != nil {
		return collapse(m[1])
	}

	lines := strings.Split(text, "\n")
	if len(lines) > 20 {
		lines = lines[:20]
	}
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if utf8.RuneCountInString(l) > 20 && !isDigits(l) {
			return truncate(collapse(l), maxTitleLen)
		}
	}
	if docType == "" {
		docType = "Document"
	}
	return "Untitled " + docType
}

var (
	datePassedRe = regexp.MustCompile(`day\s+of\s+(\w+),?\s+(\d{4})`)
	voteTallyRe  = regexp.MustCompile(`(?i)\b(\d{1,2})\s*-\s*(\d{1,2})\s+vote\b`)
	ayesRe       = regexp.MustCompile(`(?i)\b(?:ayes|yeas)\s*[:\-]?\s*(\d{1,2})\b`)
	naysRe       = regexp.MustCompile(`(?i)\bnays\s*[:\-]?\s*(\d{1,2})\b`)
	motionRe     = regexp.MustCompile(`(?i)motion\s+(?:was\s+)?made\s+by\s+([^,\n]+)`)
	movedRe      = regexp.MustCompile(`(?i)\bmoved\s*:\s*([^/)\n]+)`)
	mayorRe      = regexp.MustCompile(`Mayor[:\s]+([^\n]+)`)
	purposeRe    = regexp.MustCompile(`(?i)(?:WHEREAS|PURPOSE)[,:\s]+([^.]+)`)
)

// ExtractMetadata reads adoption details. Signatures are looked for only in
// the last 1000 characters; the purpose is only recorded for resolutions.
func ExtractMetadata(text, docType string) Metadata {
	var md Metadata

	if m := datePassedRe.FindString(text); m != "" {
		md.DatePassed = collapse(m)
	}

	if m := voteTallyRe.FindStringSubmatch(text); m != nil {
		md.VoteAyes, md.VoteNays = intPtr(m[1]), intPtr(m[2])
	} else {
		if m := ayesRe.FindStringSubmatch(text); m != nil {
			md.VoteAyes = intPtr(m[1])
		}
		if m := naysRe.FindStringSubmatch(text); m != nil {
			md.VoteNays = intPtr(m[1])
		}
	}

	if m := motionRe.FindStringSubmatch(text); m != nil {
		md.MotionBy = collapse(m[1])
	} else if m := movedRe.FindStringSubmatch(text); m != nil {
		md.MotionBy = collapse(m[1])
	}

	if m := mayorRe.FindStringSubmatch(tail(text, 1000)); m != nil {
		md.Signatory = collapse(m[1])
	}

	if docType == TypeResolution {
		if m := purposeRe.FindStringSubmatch(text); m != nil {
			md.Purpose = truncate(collapse(m[1]), 300)
		}
	}
	return md
}

func intPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// head returns at most n bytes from the start of s, cut on a rune boundary.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// tail returns at most n bytes from the end of s, cut on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
