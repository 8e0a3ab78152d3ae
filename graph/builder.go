// Package graph writes agenda structure, linked documents, people, and
// transcripts into the vertex/edge store.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/agendagraph/agenda"
	"github.com/brunobiangulo/agendagraph/dedup"
	"github.com/brunobiangulo/agendagraph/linker"
	"github.com/brunobiangulo/agendagraph/normalize"
	"github.com/brunobiangulo/agendagraph/store"
)

// ErrNoDocumentNumber is returned by BuildDocument for a document without a number.
var ErrNoDocumentNumber = errors.New("graph: document has no number")

// Stats counts what one build call changed.
type Stats struct {
	Vertices int `json:"vertices_created"`
	Edges    int `json:"edges_created"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

func (s *Stats) add(o Stats) {
	s.Vertices += o.Vertices
	s.Edges += o.Edges
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// vertexer is implemented by every typed record.
type vertexer interface {
	Vertex() (store.Vertex, error)
}

// Builder creates vertices and edges. Every write is idempotent: vertices are
// upserted and edges are only inserted when no edge of the same type already
// joins the same ordered pair, so rebuilding the same input adds nothing.
type Builder struct {
	store  *store.Store
	people *dedup.Directory
}

// Option configures a Builder.
type Option func(*Builder)

// WithDirectory resolves person names against d instead of a private directory.
func WithDirectory(d *dedup.Directory) Option {
	return func(b *Builder) {
		if d != nil {
			b.people = d
		}
	}
}

// NewBuilder creates a graph builder over s.
func NewBuilder(s *store.Store, opts ...Option) *Builder {
	b := &Builder{store: s}
	for _, o := range opts {
		o(b)
	}
	if b.people == nil {
		b.people = dedup.NewDirectory(nil)
	}
	return b
}

// Directory returns the person directory used for name resolution.
func (b *Builder) Directory() *dedup.Directory { return b.people }

// ---------------------------------------------------------------------------
// Meeting structure
// ---------------------------------------------------------------------------

// BuildMeeting writes the meeting, its sections, and its items. Items are
// chained with FOLLOWS edges in agenda order within each section; item
// sponsors become persons that SPONSORED the item and ATTENDED the meeting.
func (b *Builder) BuildMeeting(ctx context.Context, m *agenda.Meeting) (Stats, error) {
	var st Stats
	start := time.Now()

	meetingID := MeetingID(m.Date)
	if err := b.upsert(ctx, Meeting{Date: m.Date, Type: "Regular", Source: m.Source}, &st); err != nil {
		return st, err
	}

	bySection := make(map[string][]*agenda.Item)
	for _, it := range m.Items() {
		if it.Code == "" {
			continue
		}
		bySection[it.Section] = append(bySection[it.Section], it)
	}

	for _, sec := range m.Sections {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		sectionID := SectionID(m.Date, sec.Order)
		if b.upsert(ctx, AgendaSection{Date: m.Date, Letter: sec.Letter, Title: sec.Title, Order: sec.Order}, &st) != nil {
			continue
		}
		b.edge(ctx, meetingID, EdgeHasSection, sectionID, map[string]any{"order": sec.Order}, &st)

		var prev string
		for i, it := range bySection[sec.Letter] {
			itemID := ItemID(m.Date, it.Code)
			err := b.upsert(ctx, AgendaItem{
				Date:            m.Date,
				Code:            it.Code,
				Section:         it.Section,
				Order:           it.Order,
				Title:           it.Title,
				Description:     it.Description,
				DocumentType:    it.DocumentType,
				DocumentNumbers: it.DocumentNumbers,
				Sponsor:         it.Sponsor,
			}, &st)
			if err != nil {
				continue
			}
			b.edge(ctx, sectionID, EdgeContainsItem, itemID, map[string]any{"order": i + 1}, &st)
			if prev != "" {
				b.edge(ctx, prev, EdgeFollows, itemID, map[string]any{"sequence": i + 1}, &st)
			}
			prev = itemID

			if it.Sponsor != "" {
				if p, ok := b.ensurePerson(ctx, it.Sponsor, &st, dedup.RoleSponsor); ok {
					personID := PersonID(p.Name)
					b.edge(ctx, personID, EdgeSponsored, itemID, nil, &st)
					if role := officialRole(p.Roles); role != "" {
						b.edge(ctx, personID, EdgeAttended, meetingID, map[string]any{"role": role}, &st)
					}
				}
			}
		}
	}

	slog.Info("graph: meeting built", "meeting", meetingID,
		"sections", len(m.Sections), "items", len(m.Items()),
		"vertices_created", st.Vertices, "edges_created", st.Edges,
		"failed", st.Failed, "elapsed", time.Since(start).Round(time.Millisecond))
	return st, nil
}

// officialRole returns the highest elected or appointed role in roles, or ""
// when the person only sponsored or spoke.
func officialRole(roles []string) string {
	for _, r := range roles {
		if dedup.RolePriority(r) > dedup.RolePriority(dedup.RoleSponsor) {
			return r
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

// BuildDocument writes one linked document and its edges: INTRODUCED from
// its agenda item, REFERENCES to each cited document already in the store,
// AUTHORED_BY to the sponsor, and ABOUT_TOPIC to each topic. A missing
// target is logged and skipped without affecting the remaining edges.
func (b *Builder) BuildDocument(ctx context.Context, date normalize.Date, doc linker.LinkedDocument, sponsor string) (Stats, error) {
	var st Stats
	if err := b.upsertDocument(ctx, date, doc, &st); err != nil {
		return st, err
	}
	b.linkDocument(ctx, date, doc, sponsor, &st)
	return st, nil
}

// BuildLinks writes every document of a linking run. All document vertices
// are written before any edge so documents of the same meeting can
// reference each other. Documents the linker left unlinked are attached to
// the agenda item that lists their number, when m names one.
func (b *Builder) BuildLinks(ctx context.Context, links *linker.MeetingLinks, m *agenda.Meeting) (Stats, error) {
	var st Stats
	start := time.Now()

	docs := links.Documents()
	written := make([]linker.LinkedDocument, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if doc.ItemCode == "" && m != nil {
			if it, ok := m.ItemForDocument(doc.DocumentNumber); ok {
				doc.ItemCode = it.Code
				doc.Strategy = "agenda"
			}
		}
		if err := b.upsertDocument(ctx, links.Date, doc, &st); err != nil {
			slog.Warn("graph: document skipped", "document", doc.DocumentNumber, "error", err)
			continue
		}
		written = append(written, doc)
	}

	for _, doc := range written {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		var sponsor string
		if m != nil && doc.ItemCode != "" {
			if it, ok := m.Item(doc.ItemCode); ok {
				sponsor = it.Sponsor
			}
		}
		b.linkDocument(ctx, links.Date, doc, sponsor, &st)
	}

	slog.Info("graph: documents built", "meeting", links.Date.ISO(),
		"documents", len(written), "vertices_created", st.Vertices, "edges_created", st.Edges,
		"skipped", st.Skipped, "failed", st.Failed,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return st, nil
}

func (b *Builder) upsertDocument(ctx context.Context, date normalize.Date, doc linker.LinkedDocument, st *Stats) error {
	if doc.DocumentNumber == "" {
		return fmt.Errorf("%w: %s", ErrNoDocumentNumber, doc.Filename)
	}
	rec := Document{
		Number:       doc.DocumentNumber,
		Type:         doc.DocumentType,
		Title:        doc.Title,
		Filename:     doc.Filename,
		Path:         doc.Path,
		MeetingDate:  date.ISO(),
		ItemCode:     doc.ItemCode,
		LinkStrategy: doc.Strategy,
		DatePassed:   doc.Metadata.DatePassed,
		VoteAyes:     doc.Metadata.VoteAyes,
		VoteNays:     doc.Metadata.VoteNays,
		MotionBy:     doc.Metadata.MotionBy,
		Signatory:    doc.Metadata.Signatory,
		Purpose:      doc.Metadata.Purpose,
		Topics:       Topics(doc.Title + "\n" + doc.Metadata.Purpose),
	}
	return b.upsert(ctx, rec, st)
}

func (b *Builder) linkDocument(ctx context.Context, date normalize.Date, doc linker.LinkedDocument, sponsor string, st *Stats) {
	docID := DocumentID(doc.DocumentNumber)

	if doc.ItemCode != "" {
		b.edgeIfTarget(ctx, ItemID(date, doc.ItemCode), EdgeIntroduced, docID, map[string]any{"strategy": doc.Strategy}, st)
	}

	for _, ref := range ExtractReferences(doc.Text) {
		if ref.DocumentNumber == doc.DocumentNumber {
			continue
		}
		b.edgeIfTarget(ctx, docID, EdgeReferences, DocumentID(ref.DocumentNumber),
			map[string]any{"reference_type": ref.Type}, st)
	}

	if sponsor != "" {
		if p, ok := b.ensurePerson(ctx, sponsor, st, dedup.RoleSponsor); ok {
			b.edge(ctx, docID, EdgeAuthoredBy, PersonID(p.Name), map[string]any{"role": "sponsor"}, st)
		}
	}

	for _, topic := range Topics(doc.Title + "\n" + doc.Metadata.Purpose) {
		if b.upsert(ctx, Topic{Name: topic}, st) == nil {
			b.edge(ctx, docID, EdgeAboutTopic, TopicID(topic), nil, st)
		}
	}
}

// ---------------------------------------------------------------------------
// Transcripts
// ---------------------------------------------------------------------------

// BuildTranscripts writes each transcript and a DISCUSSED_IN edge from every
// item it covers. Section transcripts cover every item of the section in m;
// whole-meeting transcripts hang off the meeting vertex.
func (b *Builder) BuildTranscripts(ctx context.Context, tl *linker.TranscriptLinks, m *agenda.Meeting) (Stats, error) {
	var st Stats
	for _, t := range tl.Transcripts {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		rec := Transcript{
			Date:      tl.Date,
			Filename:  t.Filename,
			Path:      t.Path,
			Type:      string(t.Type),
			ItemInfo:  t.ItemInfo,
			ItemCodes: t.ItemCodes,
			PageCount: t.PageCount,
			Excerpt:   t.Excerpt,
		}
		if b.upsert(ctx, rec, &st) != nil {
			continue
		}
		transcriptID := TranscriptID(tl.Date, t.Filename)
		props := map[string]any{"transcript_type": string(t.Type)}

		for _, code := range t.ItemCodes {
			if normalize.Valid(code) {
				b.edgeIfTarget(ctx, ItemID(tl.Date, code), EdgeDiscussedIn, transcriptID, props, &st)
			} else {
				b.edgeIfTarget(ctx, MeetingID(tl.Date), EdgeDiscussedIn, transcriptID, props, &st)
			}
		}
		if m == nil {
			continue
		}
		for _, letter := range t.SectionCodes {
			for _, it := range m.Items() {
				if it.Section == letter {
					b.edgeIfTarget(ctx, ItemID(tl.Date, it.Code), EdgeDiscussedIn, transcriptID, props, &st)
				}
			}
		}
	}

	slog.Info("graph: transcripts built", "meeting", tl.Date.ISO(),
		"transcripts", len(tl.Transcripts), "edges_created", st.Edges, "skipped", st.Skipped)
	return st, nil
}

// ---------------------------------------------------------------------------
// Write helpers
// ---------------------------------------------------------------------------

func (b *Builder) upsert(ctx context.Context, rec vertexer, st *Stats) error {
	v, err := rec.Vertex()
	if err != nil {
		st.Failed++
		return err
	}
	created, err := b.store.UpsertVertex(ctx, v)
	if err != nil {
		slog.Warn("graph: vertex upsert failed", "id", v.ID, "label", v.Label, "error", err)
		st.Failed++
		return err
	}
	if created {
		st.Vertices++
	}
	return nil
}

// edge creates from -[typ]-> to unless it already exists. Failures are
// logged and counted, never returned.
func (b *Builder) edge(ctx context.Context, from, typ, to string, props map[string]any, st *Stats) {
	raw := "{}"
	if len(props) > 0 {
		data, err := json.Marshal(props)
		if err != nil {
			slog.Warn("graph: edge properties", "type", typ, "error", err)
			st.Failed++
			return
		}
		raw = string(data)
	}
	created, err := b.store.CreateEdgeIfNotExists(ctx, store.Edge{FromID: from, ToID: to, Type: typ, Properties: raw})
	if err != nil {
		slog.Warn("graph: edge failed", "from", from, "type", typ, "to", to, "error", err)
		st.Failed++
		return
	}
	if created {
		st.Edges++
	}
}

// edgeIfTarget creates the edge only when both endpoints exist; a missing
// endpoint is logged at warn and counted as skipped.
func (b *Builder) edgeIfTarget(ctx context.Context, from, typ, to string, props map[string]any, st *Stats) {
	for _, id := range []string{from, to} {
		ok, err := b.store.VertexExists(ctx, id)
		if err != nil {
			slog.Warn("graph: vertex lookup failed", "id", id, "error", err)
			st.Failed++
			return
		}
		if !ok {
			slog.Warn("graph: edge target not found", "from", from, "type", typ, "to", to, "missing", id)
			st.Skipped++
			return
		}
	}
	b.edge(ctx, from, typ, to, props, st)
}

// ensurePerson resolves raw to a canonical person and upserts the vertex.
// Roles and aliases already stored are merged, never replaced.
func (b *Builder) ensurePerson(ctx context.Context, raw string, st *Stats, roles ...string) (dedup.Person, bool) {
	p := b.people.Observe(raw, roles...)
	rec := Person{Name: p.Name, Roles: p.Roles, Aliases: p.Aliases}

	existing, err := b.store.GetVertex(ctx, PersonID(p.Name))
	switch {
	case err == nil:
		var stored Person
		if err := json.Unmarshal([]byte(existing.Properties), &stored); err != nil {
			slog.Warn("graph: stored person unreadable", "id", existing.ID, "error", err)
		} else {
			rec.Roles = dedup.MergeRoles(stored.Roles, rec.Roles)
			rec.Aliases = mergeAliases(stored.Aliases, rec.Aliases)
		}
	case !errors.Is(err, store.ErrVertexNotFound):
		slog.Warn("graph: person lookup failed", "name", p.Name, "error", err)
		st.Failed++
		return p, false
	}

	if b.upsert(ctx, rec, st) != nil {
		return p, false
	}
	p.Roles = rec.Roles
	return p, true
}

func mergeAliases(a, b []string) []string {
	out := append([]string(nil), a...)
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
