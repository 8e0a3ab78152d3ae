package linker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/brunobiangulo/agendagraph/normalize"
)

// TranscriptType classifies what part of a meeting a transcript covers.
type TranscriptType string

const (
	TranscriptSingleItem    TranscriptType = "single_item"
	TranscriptItemGroup     TranscriptType = "item_group"
	TranscriptMultiItem     TranscriptType = "multi_item"
	TranscriptPublicComment TranscriptType = "public_comment"
	TranscriptSection       TranscriptType = "section"
)

// Special labels used in transcript filenames in place of item codes.
const (
	LabelMeetingMinutes = "MEETING_MINUTES"
	LabelFullMeeting    = "FULL_MEETING"
	LabelPublicComment  = "PUBLIC_COMMENT"
)

const (
	excerptPages = 3
	excerptChars = 500
)

// PageExtractor reads the first pages of a document and reports its length.
// Extractors that implement it give transcripts a page count.
type PageExtractor interface {
	ExtractPages(ctx context.Context, path string, maxPages int) (text string, totalPages int, err error)
}

// Transcript is a verbatim transcript file tied to a meeting.
type Transcript struct {
	Path         string         `json:"path"`
	Filename     string         `json:"filename"`
	Date         normalize.Date `json:"date"`
	ItemInfo     string         `json:"item_info"`
	ItemCodes    []string       `json:"item_codes"`
	SectionCodes []string       `json:"section_codes,omitempty"`
	Type         TranscriptType `json:"type"`
	PageCount    int            `json:"page_count"`
	Excerpt      string         `json:"excerpt"`
}

// TranscriptLinks groups a meeting's transcripts.
type TranscriptLinks struct {
	Date        normalize.Date   `json:"date"`
	Transcripts []Transcript     `json:"transcripts"`
	Failed      []FailedDocument `json:"failed,omitempty"`
}

// ForItem returns the transcripts that discuss the given item code.
func (tl *TranscriptLinks) ForItem(code string) []Transcript {
	code = normalize.Code(code)
	var out []Transcript
	for _, t := range tl.Transcripts {
		for _, c := range t.ItemCodes {
			if c == code {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// ByType returns the transcripts of one type.
func (tl *TranscriptLinks) ByType(tt TranscriptType) []Transcript {
	var out []Transcript
	for _, t := range tl.Transcripts {
		if t.Type == tt {
			out = append(out, t)
		}
	}
	return out
}

var (
	transcriptNameRe = regexp.MustCompile(`(?i)^(\d{2})_(\d{2})_(\d{4})\s*-\s*Verbatim Transcripts\s*-\s*(.+)\.pdf$`)
	minutesRe        = regexp.MustCompile(`(?i)meeting\s+minutes`)
	publicOrFullRe   = regexp.MustCompile(`(?i)public|full\s+meeting`)
	commentRe        = regexp.MustCompile(`(?i)comment`)
	publicCommentRe  = regexp.MustCompile(`(?i)public\s+comment`)
	bareSectionRe    = regexp.MustCompile(`^([A-Z])\s*$`)
)

// ParseTranscriptName splits a "MM_DD_YYYY - Verbatim Transcripts - <info>.pdf"
// filename into its date and item info.
func ParseTranscriptName(name string) (normalize.Date, string, bool) {
	m := transcriptNameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return normalize.Date{}, "", false
	}
	d, err := normalize.MeetingDate(m[1] + "_" + m[2] + "_" + m[3])
	if err != nil {
		return normalize.Date{}, "", false
	}
	return d, strings.TrimSpace(m[4]), true
}

// ParseItemInfo interprets the item part of a transcript filename. It
// returns item codes (or a special label) and any bare section letters.
func ParseItemInfo(info string) (items, sections []string) {
	info = strings.TrimSpace(info)
	switch {
	case minutesRe.MatchString(info):
		return []string{LabelMeetingMinutes}, nil
	case publicOrFullRe.MatchString(info) && !commentRe.MatchString(info):
		return []string{LabelFullMeeting}, nil
	case publicCommentRe.MatchString(info):
		return []string{LabelPublicComment}, nil
	}
	if m := bareSectionRe.FindStringSubmatch(info); m != nil {
		return nil, []string{m[1]}
	}
	return normalize.ItemCodes(info), nil
}

// ClassifyTranscript derives the transcript type from its parsed codes.
func ClassifyTranscript(items, sections []string) TranscriptType {
	switch {
	case len(items) == 1 && items[0] == LabelPublicComment:
		return TranscriptPublicComment
	case len(sections) > 0:
		return TranscriptSection
	case len(items) > 3:
		return TranscriptMultiItem
	case len(items) == 1:
		return TranscriptSingleItem
	default:
		return TranscriptItemGroup
	}
}

// LinkTranscripts finds the verbatim transcripts for date under dir and
// tags each with the agenda items it covers. A missing directory yields an
// empty result.
func (l *Linker) LinkTranscripts(ctx context.Context, date normalize.Date, dir string) (*TranscriptLinks, error) {
	tl := &TranscriptLinks{Date: date}

	if _, err := os.Stat(dir); err != nil {
		slog.Warn("linker: transcript dir not found", "dir", dir, "error", err)
		return tl, nil
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "**/*"+date.Underscore()+"*Verbatim*.pdf")
	if err != nil {
		return nil, fmt.Errorf("linker: transcript glob: %w", err)
	}
	sort.Strings(matches)

	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return tl, err
		}
		path := filepath.Join(dir, filepath.FromSlash(m))
		t, err := l.processTranscript(ctx, path, date)
		if err != nil {
			slog.Warn("linker: transcript failed", "file", filepath.Base(path), "error", err)
			tl.Failed = append(tl.Failed, FailedDocument{Path: path, Error: err.Error()})
			continue
		}
		tl.Transcripts = append(tl.Transcripts, t)
	}

	slog.Info("linker: transcripts linked", "date", date.ISO(),
		"items", len(tl.Transcripts)-len(tl.ByType(TranscriptPublicComment))-len(tl.ByType(TranscriptSection)),
		"public_comments", len(tl.ByType(TranscriptPublicComment)),
		"sections", len(tl.ByType(TranscriptSection)))
	return tl, nil
}

func (l *Linker) processTranscript(ctx context.Context, path string, date normalize.Date) (Transcript, error) {
	fileDate, info, ok := ParseTranscriptName(path)
	if !ok {
		return Transcript{}, fmt.Errorf("unrecognized transcript filename %q", filepath.Base(path))
	}
	if fileDate != date {
		return Transcript{}, fmt.Errorf("transcript %q is dated %s, not %s", filepath.Base(path), fileDate.ISO(), date.ISO())
	}

	items, sections := ParseItemInfo(info)
	t := Transcript{
		Path:         path,
		Filename:     filepath.Base(path),
		Date:         date,
		ItemInfo:     info,
		ItemCodes:    items,
		SectionCodes: sections,
		Type:         ClassifyTranscript(items, sections),
	}

	tctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var text string
	var err error
	if pe, ok := l.extractor.(PageExtractor); ok {
		text, t.PageCount, err = pe.ExtractPages(tctx, path, excerptPages)
	} else {
		text, err = l.extractor.Extract(tctx, path)
	}
	if err != nil {
		// The filename alone still links the transcript.
		slog.Debug("linker: transcript text unavailable", "file", t.Filename, "error", err)
	}
	t.Excerpt = truncate(strings.TrimSpace(text), excerptChars)
	return t, nil
}
