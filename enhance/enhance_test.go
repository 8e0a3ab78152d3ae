package enhance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/agendagraph/agenda"
	"github.com/brunobiangulo/agendagraph/linker"
	"github.com/brunobiangulo/agendagraph/normalize"
)

const testAgenda = `D. PRESENTATIONS AND PROTOCOL DOCUMENTS
D-1. Proclamation declaring January as Human Trafficking Awareness Month

E. CONSENT AGENDA
E-1. A Resolution approving the final plat of Gables Station, Resolution No. 2024-01
E2 An Ordinance amending the Zoning Code, Ordinance No. 2024-02
`

func jan9(t *testing.T) normalize.Date {
	t.Helper()
	d, err := normalize.NewDate(2024, 1, 9)
	require.NoError(t, err)
	return d
}

func testStructure(t *testing.T) *Structure {
	t.Helper()
	m := agenda.Parse(testAgenda, jan9(t), "Agenda 01.09.2024.pdf")
	links := &linker.MeetingLinks{
		Date: jan9(t),
		Items: map[string][]linker.LinkedDocument{
			"E-1": {{DocumentNumber: "2024-01", Title: "A RESOLUTION approving the plat.", Filename: "2024-01 - 01_09_2024.pdf"}},
			"H-4": {{DocumentNumber: "2024-09", Title: "", DocumentType: linker.TypeResolution, Filename: "2024-09 - 01_09_2024.pdf"}},
		},
	}
	return BuildStructure(m, links)
}

// ---------------------------------------------------------------------------
// Query analysis
// ---------------------------------------------------------------------------

func TestIsCompletenessQuery(t *testing.T) {
	yes := []string{
		"What were all the items on the agenda for January 9, 2024?",
		"Give me the complete agenda for 1/9/2024",
		"Which agenda items were presented on 2024-01-09?",
		"List the items discussed at the meeting",
		"Show all resolutions and ordinances from that day",
		"I need a complete list of items",
	}
	for _, q := range yes {
		assert.True(t, IsCompletenessQuery(q), q)
	}

	no := []string{
		"What is agenda item E-1?",
		"Who sponsored Resolution 2024-01?",
		"Summarize the meeting",
		"",
	}
	for _, q := range no {
		assert.False(t, IsCompletenessQuery(q), q)
	}
}

func TestExtractDate(t *testing.T) {
	for _, q := range []string{
		"complete agenda for January 9, 2024",
		"complete agenda for Jan 9 2024",
		"complete agenda for 9.1.2024",
		"complete agenda for 1/9/2024",
		"complete agenda for 2024-01-09",
	} {
		d, ok := ExtractDate(q)
		require.True(t, ok, q)
		assert.Equal(t, "2024-01-09", d.ISO(), q)
	}

	_, ok := ExtractDate("complete agenda for last week")
	assert.False(t, ok)
	_, ok = ExtractDate("complete agenda for 13/45/2024")
	assert.False(t, ok)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (*Structure, bool, error) {
	return nil, false, errors.New("cache down")
}

func (failingCache) Put(context.Context, *Structure) error { return errors.New("cache down") }

func TestEnhancePassThrough(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	require.NoError(t, cache.Put(ctx, testStructure(t)))
	e := New(cache)

	res := Result{Answer: "E-1 approves the final plat.", Method: "local"}
	for _, q := range []string{
		"What is agenda item E-1?",                    // not a completeness query
		"What was the complete agenda?",               // no date
		"What was the complete agenda for 2/13/2024?", // nothing cached
	} {
		out := e.Enhance(ctx, q, res)
		assert.Equal(t, res, out, q)
		assert.Nil(t, out.Enhancement, q)
	}

	assert.Equal(t, res, New(failingCache{}).Enhance(ctx, "complete agenda for 1/9/2024", res))
	assert.Equal(t, res, New(nil).Enhance(ctx, "complete agenda for 1/9/2024", res))
}

func TestEnhanceAppends(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	require.NoError(t, cache.Put(ctx, testStructure(t)))

	res := Result{Answer: "Items E-1 and E-2 were discussed.", Method: "global"}
	out := New(cache).Enhance(ctx, "What were all the items on the agenda for January 9, 2024?", res)

	require.True(t, strings.HasPrefix(out.Answer, res.Answer), "original answer kept verbatim")
	assert.Greater(t, len(out.Answer), len(res.Answer))
	assert.Equal(t, "global", out.Method)
	assert.Nil(t, res.Enhancement, "input not mutated")

	require.NotNil(t, out.Enhancement)
	assert.True(t, out.Enhancement.Applied)
	assert.Equal(t, "2024-01-09", out.Enhancement.QueryDate)
	assert.Equal(t, 4, out.Enhancement.TotalItemsFound)
	assert.Equal(t, []string{"meeting-2024-01-09", "document-2024-01", "document-2024-09"}, out.Enhancement.SourceDocIDs)

	listing := out.Answer[len(res.Answer):]
	assert.Contains(t, listing, "### Ordinances\n- E-2: An Ordinance amending the Zoning Code, Ordinance No. 2024-02\n")
	assert.Contains(t, listing, "### Resolutions\n- E-1: ")
	assert.Contains(t, listing, "- H-4: "+PlaceholderItem+"\n")
	assert.Less(t, strings.Index(listing, "### Ordinances"), strings.Index(listing, "### Resolutions"))
	assert.Less(t, strings.Index(listing, "### Resolutions"), strings.Index(listing, "### Other Agenda Items"))
}

func TestRenderTranscriptPlaceholder(t *testing.T) {
	s := &Structure{Date: jan9(t)}
	s.add(Item{Code: "K-2", DocumentType: KindTranscript})
	s.add(Item{Code: "K-3", Title: "****"})
	out := Render(s)
	assert.Contains(t, out, "- K-2: "+PlaceholderTranscript+"\n")
	assert.Contains(t, out, "- K-3: "+PlaceholderItem+"\n")
	assert.NotContains(t, out, "### Ordinances")
}

// ---------------------------------------------------------------------------
// Caches
// ---------------------------------------------------------------------------

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, ok, err := c.Get(ctx, "2024-01-09")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, testStructure(t)))
	s, ok, err := c.Get(ctx, "2024-01-09")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, s.Items, 4)
	assert.Equal(t, []string{"2024-01-09"}, c.Dates())

	assert.Error(t, c.Put(ctx, &Structure{}))
}

func setupRedis(t *testing.T, opts ...RedisOption) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+mr.Addr(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t)

	require.NoError(t, c.Put(ctx, testStructure(t)))
	assert.True(t, mr.Exists("agendagraph:structure:2024-01-09"))

	s, ok, err := c.Get(ctx, "2024-01-09")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-01-09", s.Date.ISO())
	require.Len(t, s.Items, 4)
	assert.Equal(t, CategoryOrdinance, s.Items[2].Category)

	// A structure read back from Redis can still take transcripts.
	s.AddTranscripts(&linker.TranscriptLinks{Date: jan9(t), Transcripts: []linker.Transcript{
		{Filename: "01_09_2024 - Verbatim Transcripts - E-2.pdf", ItemCodes: []string{"E-2"}},
	}})
	assert.Len(t, s.Items, 4)

	_, ok, err = c.Get(ctx, "2024-02-13")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheTTLAndPrefix(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t, WithPrefix("test:"), WithTTL(time.Hour))

	require.NoError(t, c.Put(ctx, testStructure(t)))
	require.True(t, mr.Exists("test:2024-01-09"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := c.Get(ctx, "2024-01-09")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheErrors(t *testing.T) {
	_, err := NewRedisCache("not-a-url")
	assert.Error(t, err)

	ctx := context.Background()
	c, mr := setupRedis(t)
	require.NoError(t, mr.Set("agendagraph:structure:2024-01-09", "{not json"))
	_, _, err = c.Get(ctx, "2024-01-09")
	assert.Error(t, err)

	// Cache errors degrade to pass-through.
	res := Result{Answer: "a"}
	assert.Equal(t, res, New(c).Enhance(ctx, "complete agenda for 1/9/2024", res))

	assert.NoError(t, c.Ping(ctx))
}
