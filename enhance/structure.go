package enhance

import (
	"strings"

	"github.com/brunobiangulo/agendagraph/agenda"
	"github.com/brunobiangulo/agendagraph/graph"
	"github.com/brunobiangulo/agendagraph/linker"
	"github.com/brunobiangulo/agendagraph/normalize"
)

// Category groups structure items in the rendered listing.
type Category string

const (
	CategoryOrdinance  Category = "ordinance"
	CategoryResolution Category = "resolution"
	CategoryOther      Category = "other"
)

// KindTranscript marks structure items that only a transcript names.
const KindTranscript = "verbatim_transcript"

// Item is one entry of a meeting's canonical listing.
type Item struct {
	Code           string   `json:"code"`
	Title          string   `json:"title"`
	DocumentType   string   `json:"document_type,omitempty"`
	DocumentNumber string   `json:"document_number,omitempty"`
	Category       Category `json:"category"`
	SourceFile     string   `json:"source_file,omitempty"`
}

// Structure is the canonical, ordered item listing of one meeting.
type Structure struct {
	Date        normalize.Date `json:"date"`
	Items       []Item         `json:"items"`
	SourceFiles []string       `json:"source_files"`
	DocIDs      []string       `json:"doc_ids"`

	codes map[string]bool
}

// Grouped returns the items split by category, each in listing order.
func (s *Structure) Grouped() (ordinances, resolutions, other []Item) {
	for _, it := range s.Items {
		switch it.Category {
		case CategoryOrdinance:
			ordinances = append(ordinances, it)
		case CategoryResolution:
			resolutions = append(resolutions, it)
		default:
			other = append(other, it)
		}
	}
	return ordinances, resolutions, other
}

// Categorize classifies an item by its title, falling back to a code
// prefix of ORD or RES.
func Categorize(code, title string) Category {
	lower := strings.ToLower(title)
	upper := strings.ToUpper(code)
	switch {
	case strings.Contains(lower, "ordinance") || strings.HasPrefix(upper, "ORD"):
		return CategoryOrdinance
	case strings.Contains(lower, "resolution") || strings.HasPrefix(upper, "RES"):
		return CategoryResolution
	default:
		return CategoryOther
	}
}

// BuildStructure assembles the listing for one meeting from its parsed
// agenda and linked documents. Either argument may be nil. Agenda items
// come first in agenda order; documents linked to codes the agenda lacks
// are appended after them.
func BuildStructure(m *agenda.Meeting, links *linker.MeetingLinks) *Structure {
	s := &Structure{codes: make(map[string]bool)}
	switch {
	case m != nil:
		s.Date = m.Date
	case links != nil:
		s.Date = links.Date
	}

	var linked map[string][]linker.LinkedDocument
	if links != nil {
		linked = links.Items
	}

	if m != nil {
		if m.Source != "" {
			s.SourceFiles = append(s.SourceFiles, m.Source)
			s.DocIDs = append(s.DocIDs, graph.MeetingID(m.Date))
		}
		for _, it := range m.Items() {
			item := Item{Code: it.Code, Title: it.Title, DocumentType: it.DocumentType}
			if docs := linked[it.Code]; len(docs) > 0 {
				item.DocumentNumber = docs[0].DocumentNumber
				if item.Title == "" {
					item.Title = docs[0].Title
				}
			}
			s.add(item)
		}
	}

	if links != nil {
		for _, code := range links.Codes() {
			for _, doc := range links.Items[code] {
				s.SourceFiles = append(s.SourceFiles, doc.Filename)
				s.DocIDs = append(s.DocIDs, graph.DocumentID(doc.DocumentNumber))
			}
			if s.codes[code] {
				continue
			}
			doc := links.Items[code][0]
			s.add(Item{
				Code:           code,
				Title:          doc.Title,
				DocumentType:   doc.DocumentType,
				DocumentNumber: doc.DocumentNumber,
				SourceFile:     doc.Filename,
			})
		}
	}
	return s
}

// AddTranscripts records transcripts as sources and lists any item only a
// transcript mentions.
func (s *Structure) AddTranscripts(tl *linker.TranscriptLinks) {
	if s.codes == nil {
		s.codes = make(map[string]bool)
		for _, it := range s.Items {
			s.codes[it.Code] = true
		}
	}
	for _, t := range tl.Transcripts {
		s.SourceFiles = append(s.SourceFiles, t.Filename)
		s.DocIDs = append(s.DocIDs, graph.TranscriptID(tl.Date, t.Filename))
		for _, code := range t.ItemCodes {
			if !normalize.Valid(code) || s.codes[code] {
				continue
			}
			s.add(Item{Code: code, DocumentType: KindTranscript, SourceFile: t.Filename})
		}
	}
}

func (s *Structure) add(it Item) {
	if s.codes == nil {
		s.codes = make(map[string]bool)
	}
	it.Category = Categorize(it.Code, it.Title)
	s.codes[it.Code] = true
	s.Items = append(s.Items, it)
}
