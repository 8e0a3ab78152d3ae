package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/brunobiangulo/agendagraph/normalize"
	"github.com/brunobiangulo/agendagraph/store"
)

// Vertex labels.
const (
	LabelMeeting    = "Meeting"
	LabelSection    = "AgendaSection"
	LabelItem       = "AgendaItem"
	LabelDocument   = "Document"
	LabelPerson     = "Person"
	LabelTopic      = "Topic"
	LabelTranscript = "Transcript"
)

// Edge types.
const (
	EdgeHasSection   = "HAS_SECTION"
	EdgeContainsItem = "CONTAINS_ITEM"
	EdgeFollows      = "FOLLOWS"
	EdgeIntroduced   = "INTRODUCED"
	EdgeReferences   = "REFERENCES"
	EdgeAuthoredBy   = "AUTHORED_BY"
	EdgeSponsored    = "SPONSORED"
	EdgeAttended     = "ATTENDED"
	EdgeDiscussedIn  = "DISCUSSED_IN"
	EdgeAboutTopic   = "ABOUT_TOPIC"
)

// MeetingID returns the vertex id of the meeting held on d.
func MeetingID(d normalize.Date) string { return "meeting-" + d.ISO() }

// SectionID returns the vertex id of the idx-th section of a meeting.
func SectionID(d normalize.Date, idx int) string {
	return "section-" + d.ISO() + "-" + strconv.Itoa(idx)
}

// ItemID returns the vertex id of an agenda item. The code is normalized.
func ItemID(d normalize.Date, code string) string {
	return "item-" + d.ISO() + "-" + normalize.Code(code)
}

// DocumentID returns the vertex id of an ordinance or resolution.
func DocumentID(number string) string { return "document-" + strings.TrimSpace(number) }

// PersonID returns the vertex id of a canonical person.
func PersonID(name string) string { return "person-" + slug(name) }

// TopicID returns the vertex id of a topic.
func TopicID(name string) string { return "topic-" + slug(name) }

// TranscriptID returns the vertex id of a transcript file.
func TranscriptID(d normalize.Date, filename string) string {
	name := strings.TrimSuffix(filename, ".pdf")
	if i := strings.LastIndex(name, " - "); i >= 0 {
		name = name[i+3:]
	}
	return "transcript-" + d.ISO() + "-" + slug(name)
}

var slugReplacer = strings.NewReplacer(".", "", "'", "", `"`, "", ",", "", "/", "-", "_", "-")

func slug(s string) string {
	s = slugReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	return strings.Join(strings.Fields(s), "-")
}

// ---------------------------------------------------------------------------
// Typed records
// ---------------------------------------------------------------------------

// Meeting is the root vertex of one agenda.
type Meeting struct {
	Date   normalize.Date `json:"date"`
	Type   string         `json:"meeting_type,omitempty"`
	Source string         `json:"source_file,omitempty"`
	Extra  map[string]any `json:"-"`
}

// Vertex converts the record for storage.
func (m Meeting) Vertex() (store.Vertex, error) {
	return toVertex(MeetingID(m.Date), LabelMeeting, m, m.Extra)
}

// AgendaSection is a lettered section of a meeting.
type AgendaSection struct {
	Date   normalize.Date `json:"-"`
	Letter string         `json:"letter"`
	Title  string         `json:"title,omitempty"`
	Order  int            `json:"order"`
	Extra  map[string]any `json:"-"`
}

// Vertex converts the record for storage.
func (s AgendaSection) Vertex() (store.Vertex, error) {
	return toVertex(SectionID(s.Date, s.Order), LabelSection, s, s.Extra)
}

// AgendaItem is one item on a meeting agenda.
type AgendaItem struct {
	Date            normalize.Date `json:"meeting_date"`
	Code            string         `json:"code"`
	Section         string         `json:"section,omitempty"`
	Order           int            `json:"order"`
	Title           string         `json:"title,omitempty"`
	Description     string         `json:"description,omitempty"`
	DocumentType    string         `json:"document_type,omitempty"`
	DocumentNumbers []string       `json:"document_numbers,omitempty"`
	Sponsor         string         `json:"sponsor,omitempty"`
	Extra           map[string]any `json:"-"`
}

// Vertex converts the record for storage.
func (i AgendaItem) Vertex() (store.Vertex, error) {
	return toVertex(ItemID(i.Date, i.Code), LabelItem, i, i.Extra)
}

// Document is an ordinance or resolution.
type Document struct {
	Number       string         `json:"document_number"`
	Type         string         `json:"document_type"`
	Title        string         `json:"title,omitempty"`
	Filename     string         `json:"filename,omitempty"`
	Path         string         `json:"path,omitempty"`
	MeetingDate  string         `json:"meeting_date,omitempty"`
	ItemCode     string         `json:"item_code,omitempty"`
	LinkStrategy string         `json:"link_strategy,omitempty"`
	DatePassed   string         `json:"date_passed,omitempty"`
	VoteAyes     *int           `json:"vote_ayes,omitempty"`
	VoteNays     *int           `json:"vote_nays,omitempty"`
	MotionBy     string         `json:"motion_by,omitempty"`
	Signatory    string         `json:"signatory,omitempty"`
	Purpose      string         `json:"purpose,omitempty"`
	Topics       []string       `json:"topics,omitempty"`
	Extra        map[string]any `json:"-"`
}

// Vertex converts the record for storage.
func (d Document) Vertex() (store.Vertex, error) {
	return toVertex(DocumentID(d.Number), LabelDocument, d, d.Extra)
}

// Person is a canonical individual.
type Person struct {
	Name    string         `json:"name"`
	Roles   []string       `json:"roles,omitempty"`
	Aliases []string       `json:"aliases,omitempty"`
	Extra   map[string]any `json:"-"`
}

// Vertex converts the record for storage.
func (p Person) Vertex() (store.Vertex, error) {
	return toVertex(PersonID(p.Name), LabelPerson, p, p.Extra)
}

// Topic is a subject-matter keyword shared by documents.
type Topic struct {
	Name  string         `json:"name"`
	Extra map[string]any `json:"-"`
}

// Vertex converts the record for storage.
func (t Topic) Vertex() (store.Vertex, error) {
	return toVertex(TopicID(t.Name), LabelTopic, t, t.Extra)
}

// Transcript is a verbatim transcript of part of a meeting.
type Transcript struct {
	Date      normalize.Date `json:"meeting_date"`
	Filename  string         `json:"filename"`
	Path      string         `json:"path,omitempty"`
	Type      string         `json:"transcript_type"`
	ItemInfo  string         `json:"item_info,omitempty"`
	ItemCodes []string       `json:"item_codes,omitempty"`
	PageCount int            `json:"page_count,omitempty"`
	Excerpt   string         `json:"excerpt,omitempty"`
	Extra     map[string]any `json:"-"`
}

// Vertex converts the record for storage.
func (t Transcript) Vertex() (store.Vertex, error) {
	return toVertex(TranscriptID(t.Date, t.Filename), LabelTranscript, t, t.Extra)
}

// toVertex marshals rec and folds in extra keys that the record does not
// already define.
func toVertex(id, label string, rec any, extra map[string]any) (store.Vertex, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return store.Vertex{}, fmt.Errorf("graph: encoding %s %s: %w", label, id, err)
	}
	if len(extra) > 0 {
		props := make(map[string]any)
		if err := json.Unmarshal(raw, &props); err != nil {
			return store.Vertex{}, fmt.Errorf("graph: encoding %s %s: %w", label, id, err)
		}
		for k, v := range extra {
			if _, ok := props[k]; !ok {
				props[k] = v
			}
		}
		if raw, err = json.Marshal(props); err != nil {
			return store.Vertex{}, fmt.Errorf("graph: encoding %s %s extra: %w", label, id, err)
		}
	}
	return store.Vertex{ID: id, Label: label, Properties: string(raw)}, nil
}
