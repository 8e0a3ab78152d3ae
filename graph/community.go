package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/brunobiangulo/agendagraph/store"
)

// MaxCommunityLevel is the finest granularity DetectCommunities produces.
// Level 0 groups the whole connected corpus; each further level splits the
// previous level's communities where that improves modularity.
const MaxCommunityLevel = 2

const (
	// minSplitSize is the smallest community eligible for splitting.
	minSplitSize = 4

	// maxSplitSize caps the greedy optimisation. Larger communities are
	// kept whole at the finer levels.
	maxSplitSize = 500

	maxSplitPasses = 20
)

// Community is a group of densely connected vertices at one level.
type Community struct {
	ID      string         `json:"id"`
	Level   int            `json:"level"`
	Members []store.Vertex `json:"members"`
	Labels  map[string]int `json:"labels"`
}

// Contains reports whether the vertex id is a member.
func (c Community) Contains(id string) bool {
	for _, m := range c.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Summary describes the community's size and make-up, largest label first.
func (c Community) Summary() string {
	labels := make([]string, 0, len(c.Labels))
	for l := range c.Labels {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if c.Labels[labels[i]] != c.Labels[labels[j]] {
			return c.Labels[labels[i]] > c.Labels[labels[j]]
		}
		return labels[i] < labels[j]
	})
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%d %s", c.Labels[l], l)
	}
	return fmt.Sprintf("%d records: %s", len(c.Members), strings.Join(parts, ", "))
}

type adjEdge struct {
	to     int
	weight float64
}

// DetectCommunities partitions the stored graph at the given level, which
// is clamped to [0, MaxCommunityLevel]. Level-0 communities are connected
// components. Every finer level runs a greedy modularity split over each
// community of the level above, so levels nest. Communities are returned
// largest first, ties broken by their smallest vertex id.
func DetectCommunities(ctx context.Context, s *store.Store, level int) ([]Community, error) {
	if level < 0 {
		level = 0
	}
	if level > MaxCommunityLevel {
		level = MaxCommunityLevel
	}

	vertices, err := s.AllVertices(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading vertices: %w", err)
	}
	if len(vertices) == 0 {
		return nil, nil
	}
	edges, err := s.AllEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}

	index := make(map[string]int, len(vertices))
	for i, v := range vertices {
		index[v.ID] = i
	}
	adj := make([][]adjEdge, len(vertices))
	for _, e := range edges {
		from, okF := index[e.FromID]
		to, okT := index[e.ToID]
		if !okF || !okT || from == to {
			continue
		}
		adj[from] = append(adj[from], adjEdge{to: to, weight: 1})
		adj[to] = append(adj[to], adjEdge{to: from, weight: 1})
	}

	groups := components(adj)
	for l := 1; l <= level; l++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next [][]int
		for _, g := range groups {
			next = append(next, modularitySplit(g, adj)...)
		}
		groups = next
	}

	for _, g := range groups {
		sort.Ints(g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i]) != len(groups[j]) {
			return len(groups[i]) > len(groups[j])
		}
		return groups[i][0] < groups[j][0]
	})

	out := make([]Community, len(groups))
	for i, g := range groups {
		c := Community{
			ID:      fmt.Sprintf("community-%d-%d", level, i+1),
			Level:   level,
			Members: make([]store.Vertex, len(g)),
			Labels:  make(map[string]int),
		}
		for j, idx := range g {
			c.Members[j] = vertices[idx]
			c.Labels[vertices[idx].Label]++
		}
		out[i] = c
	}

	slog.Debug("community: detected",
		"level", level, "vertices", len(vertices), "edges", len(edges), "communities", len(out))
	return out, nil
}

// components returns the connected components in vertex index order.
func components(adj [][]adjEdge) [][]int {
	visited := make([]bool, len(adj))
	var out [][]int
	for i := range adj {
		if visited[i] {
			continue
		}
		comp := []int{}
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			comp = append(comp, node)
			for _, e := range adj[node] {
				if !visited[e.to] {
					visited[e.to] = true
					queue = append(queue, e.to)
				}
			}
		}
		out = append(out, comp)
	}
	return out
}

// modularitySplit moves each node of comp into the neighbouring community
// with the best modularity gain until no node moves. Only edges inside comp
// count. Nodes are visited in index order and candidate communities in
// label order, so the result is deterministic. When nothing splits, comp is
// returned as the only group.
func modularitySplit(comp []int, adj [][]adjEdge) [][]int {
	n := len(comp)
	if n < minSplitSize || n > maxSplitSize {
		return [][]int{comp}
	}
	sorted := append([]int(nil), comp...)
	sort.Ints(sorted)

	local := make(map[int]int, n)
	for i, node := range sorted {
		local[node] = i
	}

	strength := make([]float64, n)
	var m2 float64
	for i, node := range sorted {
		for _, e := range adj[node] {
			if _, ok := local[e.to]; ok {
				strength[i] += e.weight
			}
		}
		m2 += strength[i]
	}
	if m2 == 0 {
		return [][]int{comp}
	}

	community := make([]int, n)
	commStrength := make([]float64, n)
	for i := range community {
		community[i] = i
		commStrength[i] = strength[i]
	}

	for pass := 0; pass < maxSplitPasses; pass++ {
		moved := false
		for i, node := range sorted {
			weightTo := make(map[int]float64)
			for _, e := range adj[node] {
				j, ok := local[e.to]
				if !ok || j == i {
					continue
				}
				weightTo[community[j]] += e.weight
			}

			cur := community[i]
			ki := strength[i]
			commStrength[cur] -= ki

			best := cur
			bestScore := weightTo[cur] - ki*commStrength[cur]/m2
			labels := make([]int, 0, len(weightTo))
			for c := range weightTo {
				labels = append(labels, c)
			}
			sort.Ints(labels)
			for _, c := range labels {
				if c == cur {
					continue
				}
				if score := weightTo[c] - ki*commStrength[c]/m2; score > bestScore+1e-12 {
					best, bestScore = c, score
				}
			}

			commStrength[best] += ki
			if best != cur {
				community[i] = best
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	order := make(map[int]int)
	var groups [][]int
	for i, node := range sorted {
		g, ok := order[community[i]]
		if !ok {
			g = len(groups)
			order[community[i]] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], node)
	}
	if len(groups) <= 1 {
		return [][]int{comp}
	}
	return groups
}
