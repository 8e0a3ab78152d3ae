// Package dedup canonicalizes person names observed across meeting records.
//
// A Resolver owns the alias table for one deduplication pass. Construct it
// at the start of the pass, share the pointer with every stage that
// attaches a person reference, and persist its Aliases explicitly if the
// next pass should start from them.
package dedup

import (
	"sort"
	"strings"
	"sync"
)

// DefaultCutoff is the minimum Similarity accepted as a fuzzy match.
const DefaultCutoff = 0.85

// Step identifies which rule produced a resolution.
type Step string

const (
	StepAlias   Step = "alias"
	StepExact   Step = "exact"
	StepFuzzy   Step = "fuzzy"
	StepInitial Step = "surname_initial"
	StepNew     Step = "new"
)

// Match is the outcome of one resolution.
type Match struct {
	Raw        string  `json:"raw"`
	Canonical  string  `json:"canonical"`
	Step       Step    `json:"step"`
	Confidence float64 `json:"confidence"`
}

// KnownAliases seeds every Resolver with officials whose names appear in
// several spellings across the record.
var KnownAliases = map[string]string{
	"Vince Lago":          "Vince Lago",
	"Vincent Lago":        "Vince Lago",
	"Mayor Lago":          "Vince Lago",
	"Rhonda Anderson":     "Rhonda Anderson",
	"Vice Mayor Anderson": "Rhonda Anderson",
}

// Resolver maps raw person names to canonical identities. It is safe for
// concurrent use; lookups and memo inserts are serialized.
type Resolver struct {
	mu      sync.Mutex
	cutoff  float64
	aliases map[string]string
	stats   map[Step]int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCutoff overrides the fuzzy similarity cutoff.
func WithCutoff(c float64) Option {
	return func(r *Resolver) {
		if c > 0 && c <= 1 {
			r.cutoff = c
		}
	}
}

// WithAliases adds alias -> canonical entries on top of KnownAliases.
func WithAliases(aliases map[string]string) Option {
	return func(r *Resolver) {
		for k, v := range aliases {
			r.aliases[k] = v
		}
	}
}

// NewResolver creates a Resolver seeded with KnownAliases.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		cutoff:  DefaultCutoff,
		aliases: make(map[string]string, len(KnownAliases)),
		stats:   make(map[Step]int),
	}
	for k, v := range KnownAliases {
		r.aliases[k] = v
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the canonical name for raw given the canonical names
// known so far.
func (r *Resolver) Resolve(raw string, existing []string) string {
	return r.ResolveMatch(raw, existing).Canonical
}

// ResolveMatch is Resolve with the rule that matched and its confidence.
// Every outcome is memoized, so a repeated raw string returns the same
// canonical name even if existing has changed since.
func (r *Resolver) ResolveMatch(raw string, existing []string) Match {
	r.mu.Lock()
	defer r.mu.Unlock()

	if canonical, ok := r.aliases[raw]; ok {
		r.stats[StepAlias]++
		return Match{Raw: raw, Canonical: canonical, Step: StepAlias, Confidence: 1}
	}

	clean := CleanName(raw)
	if clean == "" {
		clean = strings.Join(strings.Fields(raw), " ")
	}

	m := r.bestMatch(clean, existing)
	m.Raw = raw
	r.aliases[raw] = m.Canonical
	r.stats[m.Step]++
	return m
}

func (r *Resolver) bestMatch(clean string, existing []string) Match {
	candidates := make([]string, 0, len(existing))
	for _, c := range existing {
		if c == clean {
			return Match{Canonical: c, Step: StepExact, Confidence: 1}
		}
		if c != "" {
			candidates = append(candidates, c)
		}
	}
	// Sorting makes tie-breaks independent of the caller's ordering.
	sort.Strings(candidates)

	best, bestScore := "", 0.0
	for _, c := range candidates {
		if s := Similarity(clean, c); s >= r.cutoff && s > bestScore {
			best, bestScore = c, s
		}
	}
	if best != "" {
		return Match{Canonical: best, Step: StepFuzzy, Confidence: bestScore}
	}

	parts := strings.Fields(clean)
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		for _, c := range candidates {
			cp := strings.Fields(c)
			if len(cp) == 0 || cp[len(cp)-1] != last {
				continue
			}
			if c[0] == clean[0] {
				return Match{Canonical: c, Step: StepInitial, Confidence: Similarity(clean, c)}
			}
		}
	}

	return Match{Canonical: clean, Step: StepNew, Confidence: 1}
}

// Aliases returns a snapshot of the alias table.
func (r *Resolver) Aliases() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// Seed restores alias entries, typically from a previous pass.
func (r *Resolver) Seed(aliases map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range aliases {
		r.aliases[k] = v
	}
}

// Stats returns how many resolutions each rule produced.
func (r *Resolver) Stats() map[Step]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Step]int, len(r.stats))
	for k, v := range r.stats {
		out[k] = v
	}
	return out
}
