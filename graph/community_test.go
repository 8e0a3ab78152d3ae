//go:build cgo

package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/agendagraph/store"
)

// twoTriangles seeds two triangles joined by one edge plus an isolated vertex.
func twoTriangles(t *testing.T) *store.Store {
	t.Helper()
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a1", "a2", "a3", "b1", "b2", "b3", "z"} {
		label := LabelItem
		if id[0] == 'b' {
			label = LabelDocument
		}
		_, err := s.UpsertVertex(ctx, store.Vertex{ID: id, Label: label, Properties: "{}"})
		require.NoError(t, err)
	}
	for _, e := range [][2]string{
		{"a1", "a2"}, {"a1", "a3"}, {"a2", "a3"},
		{"b1", "b2"}, {"b1", "b3"}, {"b2", "b3"},
		{"a3", "b1"},
	} {
		_, err := s.CreateEdgeIfNotExists(ctx, store.Edge{FromID: e[0], ToID: e[1], Type: "RELATED"})
		require.NoError(t, err)
	}
	return s
}

func memberIDs(c Community) []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	return ids
}

func TestDetectCommunitiesLevels(t *testing.T) {
	s := twoTriangles(t)
	ctx := context.Background()

	level0, err := DetectCommunities(ctx, s, 0)
	require.NoError(t, err)
	require.Len(t, level0, 2)
	assert.Equal(t, []string{"a1", "a2", "a3", "b1", "b2", "b3"}, memberIDs(level0[0]))
	assert.Equal(t, []string{"z"}, memberIDs(level0[1]))
	assert.Equal(t, "community-0-1", level0[0].ID)
	assert.Equal(t, "6 records: 3 AgendaItem, 3 Document", level0[0].Summary())

	level1, err := DetectCommunities(ctx, s, 1)
	require.NoError(t, err)
	require.Len(t, level1, 3)
	assert.Equal(t, []string{"a1", "a2", "a3"}, memberIDs(level1[0]))
	assert.Equal(t, []string{"b1", "b2", "b3"}, memberIDs(level1[1]))
	assert.Equal(t, 1, level1[0].Level)
	assert.True(t, level1[1].Contains("b2"))
	assert.False(t, level1[1].Contains("a3"))

	// Triangles are too small to split again; out of range levels clamp.
	finest, err := DetectCommunities(ctx, s, 9)
	require.NoError(t, err)
	require.Len(t, finest, 3)
	assert.Equal(t, MaxCommunityLevel, finest[0].Level)

	clamped, err := DetectCommunities(ctx, s, -1)
	require.NoError(t, err)
	assert.Len(t, clamped, 2)
}

func TestDetectCommunitiesNestOverMeetingGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := NewBuilder(s)
	_, err := b.BuildMeeting(ctx, testMeeting(t))
	require.NoError(t, err)
	_, err = b.BuildLinks(ctx, testLinks(t), testMeeting(t))
	require.NoError(t, err)

	all, err := s.AllVertices(ctx)
	require.NoError(t, err)

	var previous []Community
	for level := 0; level <= MaxCommunityLevel; level++ {
		comms, err := DetectCommunities(ctx, s, level)
		require.NoError(t, err)

		total := 0
		for _, c := range comms {
			total += len(c.Members)
			if previous == nil {
				continue
			}
			parent := false
			for _, p := range previous {
				if p.Contains(c.Members[0].ID) {
					for _, m := range c.Members {
						assert.True(t, p.Contains(m.ID), "level %d community %s escapes its parent", level, c.ID)
					}
					parent = true
					break
				}
			}
			assert.True(t, parent)
		}
		assert.Equal(t, len(all), total, "level %d must partition every vertex", level)
		assert.GreaterOrEqual(t, len(comms), len(previous))
		previous = comms
	}
}

func TestDetectCommunitiesEmptyStore(t *testing.T) {
	comms, err := DetectCommunities(context.Background(), newTestStore(t), 1)
	require.NoError(t, err)
	assert.Empty(t, comms)
}
