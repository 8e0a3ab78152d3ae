//go:build cgo

package agendagraph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/agendagraph/enhance"
	"github.com/brunobiangulo/agendagraph/llm"
	"github.com/brunobiangulo/agendagraph/normalize"
)

const testAgenda = `D. PRESENTATIONS AND PROTOCOL DOCUMENTS
D-1. Proclamation declaring January as Human Trafficking Awareness Month

E. CONSENT AGENDA
E-1. A Resolution approving the final plat of Gables Station, Resolution No. 2024-01
Sponsored by Commissioner Kirk Menendez
E2 An Ordinance amending the Zoning Code, Ordinance No. 2024-02
`

const resolutionE1 = `RESOLUTION NO. 2024-01
A RESOLUTION OF THE CITY COMMISSION APPROVING THE FINAL PLAT OF GABLES STATION.
PASSED AND ADOPTED THIS 9th day of January, 2024.
(Agenda Item: E-1)`

const ordinanceE2 = `ORDINANCE NO. 2024-02
AN ORDINANCE OF THE CITY COMMISSION AMENDING THE ZONING CODE.
PASSED AND ADOPTED THIS 9th day of January, 2024.
(Agenda Item: E-2)`

// fakeExtractor serves text by file basename.
type fakeExtractor struct {
	texts map[string]string
	err   error
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.texts[filepath.Base(path)], nil
}

type fakeChat struct{ reply string }

func (f *fakeChat) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: f.reply}, nil
}

type fixture struct {
	agenda string
	cfg    Config
	ex     *fakeExtractor
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("%PDF-1.4"), 0o644))
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	touch(t, filepath.Join(root, "agendas"), "Agenda 01.09.2024.pdf", "Agenda notes.pdf")
	touch(t, filepath.Join(root, "ordinances"), "2024-02 - 01_09_2024.pdf")
	touch(t, filepath.Join(root, "resolutions"), "2024-01 - 01_09_2024.pdf", "2024-09 - 01_23_2024.pdf")
	touch(t, filepath.Join(root, "transcripts"), "01_09_2024 - Verbatim Transcripts - E-1.pdf")

	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(root, "test.db")
	cfg.DocumentDirs = []string{filepath.Join(root, "ordinances"), filepath.Join(root, "resolutions")}
	cfg.TranscriptDir = filepath.Join(root, "transcripts")

	return &fixture{
		agenda: filepath.Join(root, "agendas", "Agenda 01.09.2024.pdf"),
		cfg:    cfg,
		ex: &fakeExtractor{texts: map[string]string{
			"Agenda 01.09.2024.pdf":    testAgenda,
			"2024-01 - 01_09_2024.pdf": resolutionE1,
			"2024-02 - 01_09_2024.pdf": ordinanceE2,
		}},
	}
}

func (f *fixture) engine(t *testing.T, opts ...Option) Engine {
	t.Helper()
	opts = append([]Option{WithExtractor(f.ex), WithProvider(&fakeChat{reply: "The consent agenda covered a plat and a zoning change."})}, opts...)
	e, err := New(f.cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestProcessMeeting(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()

	res, err := e.ProcessMeeting(ctx, f.agenda)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-09", res.Date.ISO())
	assert.Equal(t, []string{"D-1", "E-1", "E-2"}, res.Agenda.Codes())
	assert.Equal(t, []string{"E-1", "E-2"}, res.Links.Codes())
	assert.Empty(t, res.Links.Failed)
	require.NotNil(t, res.Transcripts)
	assert.Len(t, res.Transcripts.Transcripts, 1)
	assert.Greater(t, res.Graph.Vertices, 0)
	assert.Greater(t, res.Graph.Edges, 0)
	assert.Equal(t, "agendagraph", string(res.Handle))

	require.Len(t, res.People, 1)
	assert.Equal(t, "Kirk Menendez", res.People[0].Name)
	assert.Equal(t, "Kirk Menendez", e.Resolve("Commissioner Kirk Menendez"))

	require.NotNil(t, res.Structure)
	assert.Equal(t, res.Structure, mustStructure(t, e, res.Date))

	files, err := e.Store().ListSourceFiles(ctx, "2024-01-09")
	require.NoError(t, err)
	assert.Len(t, files, 4) // agenda, two documents, one transcript

	assert.Equal(t, 1.0, metricValue(t, e, "agendagraph_meetings_processed_total"))
}

func TestProcessMeetingIdempotent(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()

	first, err := e.ProcessMeeting(ctx, f.agenda)
	require.NoError(t, err)
	second, err := e.ProcessMeeting(ctx, f.agenda)
	require.NoError(t, err)

	assert.Zero(t, second.Graph.Vertices)
	assert.Zero(t, second.Graph.Edges)
	assert.Equal(t, first.Links.Codes(), second.Links.Codes())

	stats, err := e.Store().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Graph.Vertices, stats.Vertices)
}

func TestProcessMeetingErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine(t).ProcessMeeting(ctx, filepath.Join(filepath.Dir(f.agenda), "Agenda notes.pdf"))
	assert.ErrorIs(t, err, ErrNoMeetingDate)

	f.ex.texts["Agenda 01.09.2024.pdf"] = "CITY OF CORAL GABLES\nNo numbered items today."
	_, err = f.engine(t).ProcessMeeting(ctx, f.agenda)
	assert.ErrorIs(t, err, ErrEmptyAgenda)

	f.ex.err = errors.New("corrupt xref table")
	_, err = f.engine(t).ProcessMeeting(ctx, f.agenda)
	assert.ErrorIs(t, err, ErrParsingFailed)
}

func TestQueryEnhancesListing(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()

	_, err := e.ProcessMeeting(ctx, f.agenda)
	require.NoError(t, err)

	ans, err := e.Query(ctx, "List all items on the agenda for January 9, 2024")
	require.NoError(t, err)

	assert.NotEmpty(t, ans.RequestID)
	require.NotNil(t, ans.Enhancement)
	assert.True(t, ans.Enhancement.Applied)
	assert.Equal(t, "2024-01-09", ans.Enhancement.QueryDate)
	assert.Equal(t, ans.Enhancement.TotalItemsFound, len(mustStructure(t, e, jan(t, 9)).Items))
	assert.Contains(t, ans.Text, "E-1")
	assert.Contains(t, ans.Text, "E-2")
}

func TestQueryPointed(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()

	_, err := e.ProcessMeeting(ctx, f.agenda)
	require.NoError(t, err)

	ans, err := e.Query(ctx, "What is agenda item E-1 about?")
	require.NoError(t, err)
	assert.Nil(t, ans.Enhancement)
	assert.Equal(t, "The consent agenda covered a plat and a zoning change.", ans.Text)
	assert.Equal(t, []string{"E-1"}, ans.Route.Codes())
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "item-2024-01-09-E-1", ans.Sources[0])

	logged, err := e.Store().QuerySources(ctx, ans.RequestID)
	require.NoError(t, err)
	assert.Equal(t, ans.Sources, logged)

	_, err = e.Query(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestQueryWhileProcessing(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := e.ProcessMeeting(ctx, f.agenda)
		errs <- err
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Query(ctx, "What is agenda item E-1 about?")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	ans, err := e.Query(ctx, "What is agenda item E-1 about?")
	require.NoError(t, err)
	assert.Contains(t, ans.Sources, "item-2024-01-09-E-1")
}

func TestStructureNotFound(t *testing.T) {
	e := newFixture(t).engine(t, WithStructureCache(enhance.NewMemoryCache()))
	_, err := e.Structure(context.Background(), jan(t, 23))
	assert.ErrorIs(t, err, ErrStructureNotFound)
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Backend = "redis"
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func jan(t *testing.T, day int) normalize.Date {
	t.Helper()
	d, err := normalize.NewDate(2024, 1, day)
	require.NoError(t, err)
	return d
}

func mustStructure(t *testing.T, e Engine, d normalize.Date) *enhance.Structure {
	t.Helper()
	s, err := e.Structure(context.Background(), d)
	require.NoError(t, err)
	return s
}

func metricValue(t *testing.T, e Engine, name string) float64 {
	t.Helper()
	families, err := e.Metrics().Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
