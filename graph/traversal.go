package graph

import (
	"context"
	"fmt"

	"github.com/brunobiangulo/agendagraph/store"
)

// TraversalResult contains the vertices and edges reached from the seeds.
type TraversalResult struct {
	Vertices []store.Vertex
	Edges    []store.Edge
}

// Traverse walks outgoing and incoming edges breadth-first from seedIDs up
// to maxDepth hops and returns at most limit vertices in visit order. Seeds
// that do not exist are ignored.
func Traverse(ctx context.Context, s *store.Store, seedIDs []string, maxDepth, limit int) (*TraversalResult, error) {
	res := &TraversalResult{}
	if len(seedIDs) == 0 || maxDepth < 0 {
		return res, nil
	}
	if limit <= 0 {
		limit = 50
	}

	visited := make(map[string]bool)
	seenEdge := make(map[int64]bool)
	var queue []string

	visit := func(id string) error {
		if visited[id] || len(res.Vertices) >= limit {
			return nil
		}
		v, err := s.GetVertex(ctx, id)
		if err != nil {
			return err
		}
		visited[id] = true
		res.Vertices = append(res.Vertices, *v)
		queue = append(queue, id)
		return nil
	}

	for _, id := range seedIDs {
		ok, err := s.VertexExists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("graph.Traverse: looking up seed %s: %w", id, err)
		}
		if ok {
			if err := visit(id); err != nil {
				return nil, fmt.Errorf("graph.Traverse: loading seed %s: %w", id, err)
			}
		}
	}

	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		frontier := queue
		queue = nil
		for _, id := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out, err := s.EdgesFrom(ctx, id, "")
			if err != nil {
				return nil, fmt.Errorf("graph.Traverse: edges from %s: %w", id, err)
			}
			in, err := s.EdgesTo(ctx, id, "")
			if err != nil {
				return nil, fmt.Errorf("graph.Traverse: edges to %s: %w", id, err)
			}
			for _, e := range append(out, in...) {
				next := e.ToID
				if next == id {
					next = e.FromID
				}
				if err := visit(next); err != nil {
					return nil, fmt.Errorf("graph.Traverse: loading %s: %w", next, err)
				}
				if visited[next] && !seenEdge[e.ID] {
					seenEdge[e.ID] = true
					res.Edges = append(res.Edges, e)
				}
			}
		}
	}
	return res, nil
}
