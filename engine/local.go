package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/brunobiangulo/agendagraph/graph"
	"github.com/brunobiangulo/agendagraph/llm"
	"github.com/brunobiangulo/agendagraph/router"
	"github.com/brunobiangulo/agendagraph/store"
)

const (
	defaultMaxVertices = 30
	defaultMaxTokens   = 1024
	maxPropertyLen     = 800
)

// LocalEngine answers questions from the local graph store. Vertices are
// gathered two ways, by walking the graph out from the entities a route
// names and by keyword match against vertex properties, then fused and
// handed to the chat model as context.
type LocalEngine struct {
	store       *store.Store
	chat        llm.Provider
	resolve     func(name string) string
	maxVertices int
	maxTokens   int
}

// LocalOption configures a LocalEngine.
type LocalOption func(*LocalEngine)

// WithMaxVertices bounds the vertices placed in the prompt context.
func WithMaxVertices(n int) LocalOption {
	return func(e *LocalEngine) { e.maxVertices = n }
}

// WithMaxTokens bounds the length of generated answers.
func WithMaxTokens(n int) LocalOption {
	return func(e *LocalEngine) { e.maxTokens = n }
}

// WithPersonResolver maps person names found in questions to their
// canonical form before they are looked up in the graph.
func WithPersonResolver(resolve func(name string) string) LocalOption {
	return func(e *LocalEngine) { e.resolve = resolve }
}

// NewLocal creates a LocalEngine over s answering with chat.
func NewLocal(s *store.Store, chat llm.Provider, opts ...LocalOption) *LocalEngine {
	e := &LocalEngine{
		store:       s,
		chat:        chat,
		maxVertices: defaultMaxVertices,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Index names the corpus. The graph builder has already written its
// vertices to the store, so nothing else is done.
func (e *LocalEngine) Index(_ context.Context, c Corpus) (Handle, error) {
	name := c.Name
	if name == "" {
		name = "local"
	}
	slog.Info("engine: local index ready", "corpus", name, "documents", len(c.Documents))
	return Handle(name), nil
}

// Query answers question using the vertices related to it. When nothing
// relates, InsufficientAnswer is returned without calling the model.
// Global routes, and drift routes with an initial community level, also
// draw on the graph communities at the route's level.
func (e *LocalEngine) Query(ctx context.Context, h Handle, question string, route router.Route) (Answer, error) {
	if h == "" {
		return Answer{}, ErrNoHandle
	}
	start := time.Now()

	keyword, err := e.store.FindVertices(ctx, "", significantTerms(question), e.maxVertices)
	if err != nil {
		return Answer{}, fmt.Errorf("engine: keyword search: %w", err)
	}

	seeds, err := e.seeds(ctx, route)
	if err != nil {
		return Answer{}, fmt.Errorf("engine: resolving entities: %w", err)
	}
	if len(seeds) == 0 && route.Method != router.MethodLocal {
		for i := 0; i < len(keyword) && i < 5; i++ {
			seeds = append(seeds, keyword[i].ID)
		}
	}

	var walked []store.Vertex
	if len(seeds) > 0 {
		tr, err := graph.Traverse(ctx, e.store, seeds, traversalDepth(route), e.maxVertices)
		if err != nil {
			return Answer{}, fmt.Errorf("engine: traversal: %w", err)
		}
		walked = tr.Vertices
	}

	hits := append([]string(nil), seeds...)
	for _, v := range keyword {
		hits = append(hits, v.ID)
	}
	comms, members, err := e.communityContext(ctx, route, hits)
	if err != nil {
		return Answer{}, fmt.Errorf("engine: communities: %w", err)
	}

	limit := e.maxVertices
	if k := route.Params.TopKEntities; k > 0 && k < limit {
		limit = k
	}
	fused := fuseRRF(
		map[string][]store.Vertex{"graph": walked, "keyword": keyword, "community": members},
		weights(route.Method),
		limit,
	)

	slog.Debug("engine: local context gathered",
		"method", route.Method,
		"seeds", len(seeds),
		"graph", len(walked),
		"keyword", len(keyword),
		"communities", len(comms),
		"fused", len(fused))

	if len(fused) == 0 {
		slog.Info("engine: no related records", "question", question)
		return Answer{Text: InsufficientAnswer}, nil
	}
	if e.chat == nil {
		return Answer{}, errors.New("engine: local engine has no chat provider")
	}

	prompt := buildAnswerPrompt(question, buildContext(fused), communityOverview(comms), route)
	text, err := llm.Complete(ctx, e.chat, systemPrompt, prompt, e.maxTokens)
	if err != nil {
		return Answer{}, fmt.Errorf("engine: generating answer: %w", err)
	}

	sources := make([]string, len(fused))
	for i, r := range fused {
		sources[i] = r.Vertex.ID
	}
	slog.Info("engine: local answer",
		"method", route.Method,
		"vertices", len(fused),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return Answer{Text: strings.TrimSpace(text), Sources: sources}, nil
}

// seeds resolves the route's entities to vertex ids.
func (e *LocalEngine) seeds(ctx context.Context, route router.Route) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, ent := range route.Entities {
		switch ent.Type {
		case router.EntityAgendaItem:
			vs, err := e.store.FindVertices(ctx, graph.LabelItem, []string{ent.Value}, 50)
			if err != nil {
				return nil, err
			}
			for _, v := range vs {
				if strings.HasSuffix(v.ID, "-"+ent.Value) {
					add(v.ID)
				}
			}
		case router.EntityOrdinance, router.EntityResolution, router.EntityDocument:
			add(graph.DocumentID(ent.Value))
		case router.EntityPerson:
			name := ent.Value
			if e.resolve != nil {
				name = e.resolve(name)
			}
			add(graph.PersonID(name))
		case router.EntitySubject:
			vs, err := e.store.FindVertices(ctx, "", []string{ent.Value}, 10)
			if err != nil {
				return nil, err
			}
			for _, v := range vs {
				add(v.ID)
			}
		}
	}
	return out, nil
}

// communityLevel returns the community granularity a route asks for.
// Global routes default to the finest level.
func communityLevel(route router.Route) (int, bool) {
	switch route.Method {
	case router.MethodGlobal:
		if l := route.Params.CommunityLevel; l != nil {
			return *l, true
		}
		return graph.MaxCommunityLevel, true
	case router.MethodDrift:
		if l := route.Params.InitialCommunityLevel; l != nil {
			return *l, true
		}
	}
	return 0, false
}

// communityContext picks the communities at the route's level that hold
// the most hits, or the largest communities when nothing was hit, and
// returns them with their members up to the vertex budget.
func (e *LocalEngine) communityContext(ctx context.Context, route router.Route, hits []string) ([]graph.Community, []store.Vertex, error) {
	level, ok := communityLevel(route)
	if !ok {
		return nil, nil, nil
	}
	all, err := graph.DetectCommunities(ctx, e.store, level)
	if err != nil || len(all) == 0 {
		return nil, nil, err
	}

	hitSet := make(map[string]bool, len(hits))
	for _, id := range hits {
		hitSet[id] = true
	}
	type scored struct {
		c    graph.Community
		hits int
	}
	var ranked []scored
	for _, c := range all {
		n := 0
		for _, m := range c.Members {
			if hitSet[m.ID] {
				n++
			}
		}
		if n > 0 {
			ranked = append(ranked, scored{c, n})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].hits > ranked[j].hits })
	if len(ranked) == 0 {
		for _, c := range all {
			ranked = append(ranked, scored{c: c})
		}
	}

	var picked []graph.Community
	var members []store.Vertex
	for _, r := range ranked {
		if len(members) >= e.maxVertices {
			break
		}
		picked = append(picked, r.c)
		for _, m := range r.c.Members {
			if len(members) >= e.maxVertices {
				break
			}
			members = append(members, m)
		}
	}
	return picked, members, nil
}

func communityOverview(comms []graph.Community) string {
	if len(comms) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range comms {
		fmt.Fprintf(&b, "- %s (level %d): %s\n", c.ID, c.Level, c.Summary())
	}
	return b.String()
}

// traversalDepth widens the walk for broader methods. Drift grows with the
// number of follow-ups it is allowed.
func traversalDepth(route router.Route) int {
	switch route.Method {
	case router.MethodLocal:
		return 1
	case router.MethodGlobal:
		return 2
	default:
		d := 1 + route.Params.MaxFollowUps/2
		if d > 3 {
			d = 3
		}
		return d
	}
}

func weights(m router.Method) map[string]float64 {
	switch m {
	case router.MethodLocal:
		return map[string]float64{"graph": 1.5, "keyword": 1.0}
	case router.MethodGlobal:
		return map[string]float64{"graph": 1.0, "keyword": 1.0, "community": 1.5}
	default:
		return map[string]float64{"graph": 1.0, "keyword": 1.2, "community": 0.8}
	}
}

const systemPrompt = `You answer questions about city commission meetings using ONLY the records provided.
Rules:
1. Only state facts that the records directly support.
2. Refer to agenda items by code (for example E-1) and to ordinances and resolutions by number (for example 2024-01).
3. If the records do not contain enough information, say so explicitly.
4. Be concise but complete.`

func buildContext(vs []ranked) string {
	var b strings.Builder
	for i, r := range vs {
		fmt.Fprintf(&b, "--- Record %d: %s %s ---\n", i+1, r.Vertex.Label, r.Vertex.ID)
		var props map[string]any
		if err := json.Unmarshal([]byte(r.Vertex.Properties), &props); err != nil {
			b.WriteString(r.Vertex.Properties)
			b.WriteString("\n\n")
			continue
		}
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			val := formatProperty(props[k])
			if val == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", k, val)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatProperty(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		s = strings.Join(parts, ", ")
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	if len(s) > maxPropertyLen {
		cut := maxPropertyLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

func buildAnswerPrompt(question, records, communities string, route router.Route) string {
	var b strings.Builder
	if communities != "" {
		fmt.Fprintf(&b, "Communities:\n%s\n", communities)
	}
	fmt.Fprintf(&b, "Records:\n%s\nQuestion: %s\n\n", records, question)
	if rt := route.Params.ResponseType; rt != "" {
		fmt.Fprintf(&b, "Answer in %s.", rt)
	} else {
		b.WriteString("Answer based only on the records above.")
	}
	if route.Params.TrackSources {
		b.WriteString(" Cite the record ids you used in square brackets.")
	}
	return b.String()
}
