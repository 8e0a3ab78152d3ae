// Package agenda recovers the ordered section and item structure of a city
// commission agenda from its extracted text.
package agenda

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/brunobiangulo/agendagraph/normalize"
)

// Section is a lettered agenda section such as "E. CONSENT AGENDA".
type Section struct {
	Letter string `json:"letter"`
	Title  string `json:"title"`
	Order  int    `json:"order"`
}

// Item is one agenda item. Code is always canonical.
type Item struct {
	Code            string   `json:"code"`
	Section         string   `json:"section"`
	Order           int      `json:"order"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	DocumentNumbers []string `json:"document_numbers,omitempty"`
	DocumentType    string   `json:"document_type"`
	Sponsor         string   `json:"sponsor,omitempty"`
}

// Meeting is the parsed structure of one agenda.
type Meeting struct {
	Date     normalize.Date `json:"date"`
	Source   string         `json:"source"`
	Sections []Section      `json:"sections"`

	items []*Item
	index map[string]*Item
}

// NewMeeting returns a Meeting with no sections or items.
func NewMeeting(date normalize.Date, source string) *Meeting {
	return &Meeting{Date: date, Source: source, index: make(map[string]*Item)}
}

// AddItem appends it in agenda order, creating its section when needed.
// The code is normalized; an item whose code is already present is merged
// into the existing one and false is returned.
func (m *Meeting) AddItem(it *Item) bool {
	it.Code = normalize.Code(it.Code)
	if existing, ok := m.index[it.Code]; ok {
		if it.Description != "" {
			existing.Description = strings.TrimSpace(existing.Description + "\n" + it.Description)
		}
		classify(existing)
		return false
	}
	if it.Section == "" && it.Code != "" {
		it.Section = it.Code[:1]
	}
	if _, ok := m.Section(it.Section); !ok && it.Section != "" {
		m.addSection(it.Section, "")
	}
	it.Order = len(m.items) + 1
	classify(it)
	m.index[it.Code] = it
	m.items = append(m.items, it)
	return true
}

// Item returns the item with the given code. The code is normalized first,
// so "E1" and "E.-1" find "E-1".
func (m *Meeting) Item(code string) (*Item, bool) {
	it, ok := m.index[normalize.Code(code)]
	return it, ok
}

// Items returns items in agenda order.
func (m *Meeting) Items() []*Item {
	out := make([]*Item, len(m.items))
	copy(out, m.items)
	return out
}

// Codes returns item codes in agenda order.
func (m *Meeting) Codes() []string {
	out := make([]string, len(m.items))
	for i, it := range m.items {
		out[i] = it.Code
	}
	return out
}

// Section returns the section with the given letter.
func (m *Meeting) Section(letter string) (Section, bool) {
	for _, s := range m.Sections {
		if s.Letter == letter {
			return s, true
		}
	}
	return Section{}, false
}

// ItemForDocument returns the item whose text mentions the document number.
func (m *Meeting) ItemForDocument(number string) (*Item, bool) {
	for _, it := range m.items {
		for _, n := range it.DocumentNumbers {
			if n == number {
				return it, true
			}
		}
	}
	return nil, false
}

var filenameDateRe = regexp.MustCompile(`(\d{1,2})[._](\d{1,2})[._](\d{4})`)

// ParseFilenameDate extracts the meeting date from an agenda filename such
// as "Agenda 01.09.2024.pdf" or "Agenda 1.9.2024.pdf".
func ParseFilenameDate(name string) (normalize.Date, bool) {
	m := filenameDateRe.FindString(filepath.Base(name))
	if m == "" {
		return normalize.Date{}, false
	}
	d, err := normalize.MeetingDate(m)
	if err != nil {
		return normalize.Date{}, false
	}
	return d, true
}

// ---------------------------------------------------------------------------
// Line classification
// ---------------------------------------------------------------------------

// sectionRe matches a lettered header line in capitals: "E. CONSENT AGENDA".
var sectionRe = regexp.MustCompile(`^([A-Z])\.\s+([A-Z][A-Z0-9\s&,'/()-]*)$`)

// itemPatterns are tried in order; the first match classifies the line.
var itemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^agenda\s+item\s+([A-Z])\s*[-.]?\s*(\d+)\.?\s*(.*)$`),
	regexp.MustCompile(`(?i)^item\s+([A-Z])\s*[-.]?\s*(\d+)\.?\s*(.*)$`),
	regexp.MustCompile(`^([A-Z])\.?-(\d+)\.?(?:\s+(.*))?$`),
	regexp.MustCompile(`^([A-Z])\.?(\d+)\.?(?:\s+(.*))?$`),
}

func matchSection(line string) (letter, title string, ok bool) {
	m := sectionRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

func matchItem(line string) (code, rest string, ok bool) {
	for _, p := range itemPatterns {
		if m := p.FindStringSubmatch(line); m != nil {
			return normalize.Code(strings.ToUpper(m[1]) + "-" + m[2]), strings.TrimSpace(m[3]), true
		}
	}
	return "", "", false
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse builds the Meeting structure from agenda text. An item runs from its
// code line to the next item or section header. A code seen twice keeps its
// first position; the later text is appended to its description.
func Parse(text string, date normalize.Date, source string) *Meeting {
	m := NewMeeting(date, source)

	var (
		cur  *Item
		body []string
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Description = strings.TrimSpace(strings.Join(body, "\n"))
		m.AddItem(cur)
		cur, body = nil, nil
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			if cur != nil {
				body = append(body, "")
			}
			continue
		}

		if letter, title, ok := matchSection(line); ok {
			flush()
			m.addSection(letter, title)
			continue
		}

		if code, rest, ok := matchItem(line); ok {
			flush()
			cur = &Item{Code: code, Title: rest}
			body = []string{line}
			continue
		}

		if cur != nil {
			body = append(body, line)
		}
	}
	flush()

	return m
}

func (m *Meeting) addSection(letter, title string) {
	for i, s := range m.Sections {
		if s.Letter == letter {
			if s.Title == "" {
				m.Sections[i].Title = title
			}
			return
		}
	}
	m.Sections = append(m.Sections, Section{Letter: letter, Title: title, Order: len(m.Sections) + 1})
}

// classify fills the fields derived from an item's text.
func classify(it *Item) {
	if it.Title == "" {
		for i, l := range strings.Split(it.Description, "\n") {
			if l = strings.TrimSpace(l); l == "" {
				continue
			}
			if _, _, ok := matchItem(l); ok && i == 0 {
				continue
			}
			it.Title = l
			break
		}
	}
	it.DocumentNumbers = DocumentNumbers(it.Description)
	it.DocumentType = DocumentType(it.Description)
	it.Sponsor = Sponsor(it.Description)
}
