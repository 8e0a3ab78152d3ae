package engine

import (
	"sort"

	"github.com/brunobiangulo/agendagraph/store"
)

const rrfK = 60

// ranked is a vertex with its fused score and the lists it came from.
type ranked struct {
	Vertex  store.Vertex
	Score   float64
	Sources []string
}

// fuseRRF combines ranked vertex lists with Reciprocal Rank Fusion:
// score = sum(weight / (k + rank)), rank being 1-based. Equal scores are
// ordered by vertex id. At most limit results are returned; limit <= 0 keeps
// them all.
func fuseRRF(lists map[string][]store.Vertex, weights map[string]float64, limit int) []ranked {
	byID := make(map[string]*ranked)
	names := make([]string, 0, len(lists))
	for name := range lists {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w, ok := weights[name]
		if !ok {
			w = 1
		}
		for rank, v := range lists[name] {
			r, ok := byID[v.ID]
			if !ok {
				r = &ranked{Vertex: v}
				byID[v.ID] = r
			}
			r.Score += w / float64(rrfK+rank+1)
			r.Sources = append(r.Sources, name)
		}
	}

	out := make([]ranked, 0, len(byID))
	for _, r := range byID {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Vertex.ID < out[j].Vertex.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
