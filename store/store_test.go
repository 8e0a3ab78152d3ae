//go:build cgo

package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	s, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestMigrationsApplied(t *testing.T) {
	s := newTestStore(t)
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("reading schema version: %v", err)
	}
	if want := migrations[len(migrations)-1].version; v != want {
		t.Fatalf("schema version = %d, want %d", v, want)
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		s, err := New(dbPath)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		s.Close()
	}
}

// ---------------------------------------------------------------------------
// Source files
// ---------------------------------------------------------------------------

func TestUpsertSourceFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := SourceFile{
		Path:        "/docs/2024-01 - 01_09_2024.pdf",
		Filename:    "2024-01 - 01_09_2024.pdf",
		Kind:        "ordinance",
		MeetingDate: "2024-01-09",
		ContentHash: "abc",
		Status:      "pending",
	}
	id, err := s.UpsertSourceFile(ctx, f)
	if err != nil {
		t.Fatalf("upserting: %v", err)
	}

	f.ContentHash = "def"
	f.Status = "linked"
	id2, err := s.UpsertSourceFile(ctx, f)
	if err != nil {
		t.Fatalf("re-upserting: %v", err)
	}
	if id != id2 {
		t.Fatalf("upsert changed id: %d -> %d", id, id2)
	}

	got, err := s.GetSourceFileByPath(ctx, f.Path)
	if err != nil {
		t.Fatalf("getting: %v", err)
	}
	if got.ContentHash != "def" || got.Status != "linked" {
		t.Errorf("got hash=%q status=%q, want def/linked", got.ContentHash, got.Status)
	}

	files, err := s.ListSourceFiles(ctx, "2024-01-09")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file for date, got %d", len(files))
	}

	files, err = s.ListSourceFiles(ctx, "2024-02-13")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected 0 files for other date, got %d", len(files))
	}
}

func TestGetSourceFileNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSourceFileByPath(context.Background(), "/missing.pdf")
	if !errors.Is(err, ErrSourceFileNotFound) {
		t.Fatalf("expected ErrSourceFileNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Vertices
// ---------------------------------------------------------------------------

func TestUpsertVertexCreatesThenMerges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.UpsertVertex(ctx, Vertex{
		ID:         "person-vince-lago",
		Label:      "Person",
		Properties: `{"name":"Vince Lago","roles":["Mayor"]}`,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created {
		t.Fatal("first upsert should create")
	}

	created, err = s.UpsertVertex(ctx, Vertex{
		ID:         "person-vince-lago",
		Label:      "Person",
		Properties: `{"roles":["Mayor","Sponsor"]}`,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatal("second upsert should update, not create")
	}

	v, err := s.GetVertex(ctx, "person-vince-lago")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var props map[string]interface{}
	if err := json.Unmarshal([]byte(v.Properties), &props); err != nil {
		t.Fatalf("decoding properties: %v", err)
	}
	if props["name"] != "Vince Lago" {
		t.Errorf("name lost on merge: %v", props["name"])
	}
	roles, _ := props["roles"].([]interface{})
	if len(roles) != 2 {
		t.Errorf("roles = %v, want 2 entries", roles)
	}
}

func TestUpsertVertexRejectsInvalidJSON(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertVertex(context.Background(), Vertex{ID: "x", Label: "X", Properties: "{bad"})
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestGetVertexNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetVertex(context.Background(), "nope")
	if !errors.Is(err, ErrVertexNotFound) {
		t.Fatalf("expected ErrVertexNotFound, got %v", err)
	}
}

func TestVerticesByLabelAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, v := range []Vertex{
		{ID: "item-2024-01-09-E-1", Label: "AgendaItem", Properties: `{"code":"E-1","title":"Zoning amendment"}`},
		{ID: "item-2024-01-09-E-2", Label: "AgendaItem", Properties: `{"code":"E-2","title":"Budget transfer"}`},
		{ID: "meeting-2024-01-09", Label: "Meeting", Properties: `{"date":"2024-01-09"}`},
	} {
		if _, err := s.UpsertVertex(ctx, v); err != nil {
			t.Fatalf("upsert %s: %v", v.ID, err)
		}
	}

	items, err := s.VerticesByLabel(ctx, "AgendaItem")
	if err != nil {
		t.Fatalf("by label: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	found, err := s.FindVertices(ctx, "", []string{"zoning"}, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 || found[0].ID != "item-2024-01-09-E-1" {
		t.Fatalf("find zoning = %+v", found)
	}

	found, err = s.FindVertices(ctx, "Meeting", []string{"2024-01-09"}, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 || found[0].Label != "Meeting" {
		t.Fatalf("find meeting = %+v", found)
	}
}

// ---------------------------------------------------------------------------
// Edges
// ---------------------------------------------------------------------------

func seedPair(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := s.UpsertVertex(ctx, Vertex{ID: id, Label: "Node"}); err != nil {
			t.Fatalf("seeding %s: %v", id, err)
		}
	}
}

func TestAllVerticesAndEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPair(t, s)
	if _, err := s.CreateEdgeIfNotExists(ctx, Edge{FromID: "a", ToID: "b", Type: "FOLLOWS"}); err != nil {
		t.Fatalf("create edge: %v", err)
	}

	vs, err := s.AllVertices(ctx)
	if err != nil {
		t.Fatalf("all vertices: %v", err)
	}
	if len(vs) != 2 || vs[0].ID != "a" || vs[1].ID != "b" {
		t.Errorf("vertices = %+v", vs)
	}
	es, err := s.AllEdges(ctx)
	if err != nil {
		t.Fatalf("all edges: %v", err)
	}
	if len(es) != 1 || es[0].Type != "FOLLOWS" {
		t.Errorf("edges = %+v", es)
	}
}

func TestCreateEdgeIfNotExistsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPair(t, s)

	e := Edge{FromID: "a", ToID: "b", Type: "REFERENCES", Properties: `{"reference_type":"amends"}`}
	created, err := s.CreateEdgeIfNotExists(ctx, e)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	created, err = s.CreateEdgeIfNotExists(ctx, e)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("second create should be a no-op")
	}

	n, err := s.CountEdges(ctx, "")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("edge count = %d, want 1", n)
	}

	// Same pair, different type, is a distinct edge.
	if _, err := s.CreateEdgeIfNotExists(ctx, Edge{FromID: "a", ToID: "b", Type: "MENTIONS"}); err != nil {
		t.Fatalf("create other type: %v", err)
	}
	// Reverse direction is a distinct edge.
	if _, err := s.CreateEdgeIfNotExists(ctx, Edge{FromID: "b", ToID: "a", Type: "REFERENCES"}); err != nil {
		t.Fatalf("create reverse: %v", err)
	}
	if n, _ := s.CountEdges(ctx, ""); n != 3 {
		t.Fatalf("edge count = %d, want 3", n)
	}
	if n, _ := s.CountEdges(ctx, "REFERENCES"); n != 2 {
		t.Fatalf("REFERENCES count = %d, want 2", n)
	}
}

func TestCreateEdgeConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPair(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.CreateEdgeIfNotExists(ctx, Edge{FromID: "a", ToID: "b", Type: "FOLLOWS"})
		}()
	}
	wg.Wait()

	if n, _ := s.CountEdges(ctx, "FOLLOWS"); n != 1 {
		t.Fatalf("concurrent creates produced %d edges, want 1", n)
	}
}

func TestCreateEdgeMissingEndpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPair(t, s)

	if _, err := s.CreateEdgeIfNotExists(ctx, Edge{FromID: "a", ToID: "ghost", Type: "REFERENCES"}); err == nil {
		t.Fatal("expected foreign key error for missing endpoint")
	}
}

func TestEdgesFromAndTo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPair(t, s)

	s.CreateEdgeIfNotExists(ctx, Edge{FromID: "a", ToID: "b", Type: "HAS_SECTION", Properties: `{"order":1}`})
	s.CreateEdgeIfNotExists(ctx, Edge{FromID: "a", ToID: "b", Type: "FOLLOWS"})

	out, err := s.EdgesFrom(ctx, "a", "")
	if err != nil {
		t.Fatalf("edges from: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outgoing edges, got %d", len(out))
	}

	in, err := s.EdgesTo(ctx, "b", "HAS_SECTION")
	if err != nil {
		t.Fatalf("edges to: %v", err)
	}
	if len(in) != 1 || in[0].FromID != "a" {
		t.Fatalf("incoming HAS_SECTION = %+v", in)
	}
}

// ---------------------------------------------------------------------------
// Query log / stats
// ---------------------------------------------------------------------------

func TestLogQueryAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPair(t, s)

	err := s.LogQuery(ctx, QueryLog{
		RequestID:   "req-1",
		Query:       "What were all the items on the agenda for January 9, 2024?",
		Answer:      "E-1: ...",
		Method:      "drift",
		RouteParams: map[string]int{"max_follow_ups": 2},
		Enhanced:    true,
		Sources:     []string{"item-2024-01-09-E-1", "document-2024-01"},
		Elapsed:     150 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("log query: %v", err)
	}

	sources, err := s.QuerySources(ctx, "req-1")
	if err != nil {
		t.Fatalf("query sources: %v", err)
	}
	if len(sources) != 2 || sources[0] != "item-2024-01-09-E-1" {
		t.Errorf("sources = %v", sources)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Queries != 1 || stats.Vertices != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByLabel["Node"] != 2 {
		t.Errorf("by label = %v", stats.ByLabel)
	}
}
