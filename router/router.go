// Package router decides which retrieval method should answer a question.
//
// Pattern families are checked in a fixed order and the first family that
// matches wins: entity lookups, then corpus-wide summaries, then questions
// about change over time. Anything else falls through to exploratory search.
package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/brunobiangulo/agendagraph/dedup"
	"github.com/brunobiangulo/agendagraph/normalize"
)

// Method is a retrieval strategy understood by the external engine.
type Method string

const (
	MethodLocal  Method = "local"
	MethodGlobal Method = "global"
	MethodDrift  Method = "drift"
)

// Intent records which pattern family produced a route.
type Intent string

const (
	IntentEntity      Intent = "entity_specific"
	IntentHolistic    Intent = "holistic"
	IntentTemporal    Intent = "temporal"
	IntentExploratory Intent = "exploratory"
)

// Focus describes what an entity question wants from its entities.
type Focus string

const (
	FocusSpecific   Focus = "specific_entity"
	FocusMultiple   Focus = "multiple_specific"
	FocusComparison Focus = "comparison"
	FocusContextual Focus = "contextual"
)

// Entity types recognised in questions.
const (
	EntityAgendaItem = "agenda_item"
	EntityOrdinance  = "ordinance"
	EntityResolution = "resolution"
	EntityDocument   = "document"
	EntityPerson     = "person"
	EntitySubject    = "subject"
)

// Entity is something a question names.
type Entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Params are the engine knobs for a route. Zero values are omitted from
// JSON; community levels are pointers because level 0 is meaningful.
type Params struct {
	TopKEntities            int    `json:"top_k_entities,omitempty"`
	CommunityLevel          *int   `json:"community_level,omitempty"`
	ResponseType            string `json:"response_type,omitempty"`
	InitialCommunityLevel   *int   `json:"initial_community_level,omitempty"`
	MaxFollowUps            int    `json:"max_follow_ups,omitempty"`
	IncludeCommunityContext bool   `json:"include_community_context,omitempty"`
	StrictEntityFocus       bool   `json:"strict_entity_focus,omitempty"`
	ComparisonMode          bool   `json:"comparison_mode,omitempty"`
	TrackSources            bool   `json:"track_sources,omitempty"`
	IncludeSourceMetadata   bool   `json:"include_source_metadata,omitempty"`
	CitationStyle           string `json:"citation_style,omitempty"`
}

// Route is the routing decision for one question.
type Route struct {
	Method   Method   `json:"method"`
	Intent   Intent   `json:"intent"`
	Focus    Focus    `json:"focus,omitempty"`
	Params   Params   `json:"params"`
	Entities []Entity `json:"entities,omitempty"`
	Reason   string   `json:"reason"`
}

// Codes returns the agenda item codes among the route's entities.
func (r Route) Codes() []string {
	var out []string
	for _, e := range r.Entities {
		if e.Type == EntityAgendaItem {
			out = append(out, e.Value)
		}
	}
	return out
}

// DocumentNumbers returns the ordinance and resolution numbers among the
// route's entities.
func (r Route) DocumentNumbers() []string {
	var out []string
	for _, e := range r.Entities {
		switch e.Type {
		case EntityOrdinance, EntityResolution, EntityDocument:
			out = append(out, e.Value)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Pattern families
// ---------------------------------------------------------------------------

type entityPattern struct {
	typ string
	re  *regexp.Regexp
}

var (
	// Item and document patterns. Order matters only for which type wins
	// when two patterns capture the same span.
	entityPatterns = []entityPattern{
		{EntityOrdinance, regexp.MustCompile(`(?i)\bordinances?(?:\s+(?:number|no\.?|#))?\s*(\d{4}-\d+)`)},
		{EntityResolution, regexp.MustCompile(`(?i)\bresolutions?(?:\s+(?:number|no\.?|#))?\s*(\d{4}-\d+)`)},
		{EntityAgendaItem, regexp.MustCompile(`(?i)\b(?:agenda\s+)?items?\s+([A-Z]\.?-?\d+)`)},
		{EntityAgendaItem, regexp.MustCompile(`\b([A-Z]\.?-\d+)\b`)},
		{EntityDocument, regexp.MustCompile(`\b(\d{4}-\d{1,3})\b`)},
	}

	whoIsRe       = regexp.MustCompile(`(?i)\bwho\s+(?:is|was|are|were)\s+(.+?)[?.!]*$`)
	tellMeAboutRe = regexp.MustCompile(`(?i)\btell\s+me\s+about\s+(.+?)[?.!]*$`)

	holisticPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwhat\s+are\s+the\s+(?:main|top|key)\s+(?:themes|topics|issues)\b`),
		regexp.MustCompile(`(?i)\b(?:main|top|key)\s+(?:themes|topics|issues)\b`),
		regexp.MustCompile(`(?i)\bsummariz(?:e|ing|ation)\b`),
		regexp.MustCompile(`(?i)\boverall\b`),
		regexp.MustCompile(`(?i)\btrends?\s+in\b`),
		regexp.MustCompile(`(?i)\bpatterns?\s+across\b`),
	}

	temporalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bhow\s+(?:has|have)\s+.+?\s+(?:changed|evolved)\b`),
		regexp.MustCompile(`(?i)\btimeline\s+of\b`),
		regexp.MustCompile(`(?i)\bhistory\s+of\b`),
		regexp.MustCompile(`(?i)\bdevelopment\s+of\s+.+\s+over\s+time\b`),
		regexp.MustCompile(`(?i)\bevolution\s+of\b`),
		regexp.MustCompile(`(?i)\bchanges\s+in\b`),
	}

	broadScopeRe    = regexp.MustCompile(`(?i)\b(?:entire|all|overall|whole)\b`)
	midScopeRe      = regexp.MustCompile(`(?i)\b(?:departments?|districts?|areas?)\b`)
	whatIsRe        = regexp.MustCompile(`(?i)^(?:what|whats|what's)\s+(?:is|are)\s+`)
	betweenAndRe    = regexp.MustCompile(`(?i)\bbetween\b.*\band\b`)
	wordRe          = regexp.MustCompile(`[a-z']+`)
	comparisonWords = []string{"versus", "vs", "against", "compared to", "difference", "differences", "similarity", "similarities"}
)

var (
	limitingWords    = wordSet("only", "just", "specifically", "exactly", "precisely", "individually", "separately", "each")
	relationshipWord = wordSet("related", "relate", "connected", "associated", "linked", "relationship",
		"connections", "references", "mentions", "together", "context",
		"affects", "impacts", "influences", "between", "among")
	comparisonVerbs = wordSet("compare", "contrast", "differ", "differentiate", "distinguish")
	detailNouns     = []string{"details", "information", "content", "text", "provision", "summary", "description"}
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// Classify routes a question. It never fails: a question that matches no
// family gets an exploratory route.
func Classify(question string) Route {
	q := strings.TrimSpace(question)

	if r, ok := classifyEntity(q); ok {
		return r
	}

	for _, re := range holisticPatterns {
		if re.MatchString(q) {
			level := CommunityLevel(q)
			return Route{
				Method: MethodGlobal,
				Intent: IntentHolistic,
				Params: withSources(Params{
					CommunityLevel: &level,
					ResponseType:   "multiple paragraphs",
				}),
				Reason: fmt.Sprintf("holistic pattern %q", re.FindString(q)),
			}
		}
	}

	for _, re := range temporalPatterns {
		if re.MatchString(q) {
			return Route{
				Method: MethodDrift,
				Intent: IntentTemporal,
				Params: withSources(Params{InitialCommunityLevel: intPtr(2), MaxFollowUps: 5}),
				Reason: fmt.Sprintf("temporal pattern %q", re.FindString(q)),
			}
		}
	}

	return Route{
		Method: MethodDrift,
		Intent: IntentExploratory,
		Params: withSources(Params{InitialCommunityLevel: intPtr(2), MaxFollowUps: 2}),
		Reason: "no pattern matched",
	}
}

// CommunityLevel maps the scope words of a question to a summarization
// granularity: 0 for the whole corpus, 1 for a department or district,
// 2 otherwise.
func CommunityLevel(q string) int {
	switch {
	case broadScopeRe.MatchString(q):
		return 0
	case midScopeRe.MatchString(q):
		return 1
	default:
		return 2
	}
}

func classifyEntity(q string) (Route, bool) {
	entities := ExtractEntities(q)

	if len(entities) == 0 {
		var subject Entity
		if m := whoIsRe.FindStringSubmatch(q); m != nil {
			subject = Entity{Type: EntityPerson, Value: dedup.CleanName(m[1])}
		} else if m := tellMeAboutRe.FindStringSubmatch(q); m != nil {
			subject = Entity{Type: EntitySubject, Value: strings.TrimSpace(m[1])}
		}
		if subject.Value == "" {
			return Route{}, false
		}
		return Route{
			Method:   MethodLocal,
			Intent:   IntentEntity,
			Focus:    FocusContextual,
			Params:   withSources(Params{TopKEntities: 10, IncludeCommunityContext: true}),
			Entities: []Entity{subject},
			Reason:   fmt.Sprintf("%s lookup %q", subject.Type, subject.Value),
		}, true
	}

	lower := strings.ToLower(q)
	tokens := wordRe.FindAllString(lower, -1)
	r := Route{Method: MethodLocal, Intent: IntentEntity, Entities: entities}

	if len(entities) == 1 {
		r.Focus = singleFocus(lower, tokens)
		if r.Focus == FocusSpecific {
			r.Params = Params{TopKEntities: 1, StrictEntityFocus: true}
		} else {
			r.Params = Params{TopKEntities: 10, IncludeCommunityContext: true}
		}
		r.Reason = fmt.Sprintf("%s %s", entities[0].Type, entities[0].Value)
	} else {
		r.Focus = multiFocus(lower, tokens)
		switch r.Focus {
		case FocusComparison:
			r.Params = Params{TopKEntities: 5, IncludeCommunityContext: true, ComparisonMode: true}
		case FocusMultiple:
			r.Params = Params{TopKEntities: 1, StrictEntityFocus: true}
		default:
			r.Params = Params{TopKEntities: 10, IncludeCommunityContext: true}
		}
		r.Reason = fmt.Sprintf("%d entities", len(entities))
	}
	r.Params = withSources(r.Params)
	return r, true
}

// ExtractEntities returns the agenda items and documents a question names,
// in order of appearance and without duplicates. Item codes are normalized.
func ExtractEntities(q string) []Entity {
	type found struct {
		Entity
		pos int
	}
	var hits []found
	taken := make(map[int]bool)

	for _, p := range entityPatterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(q, -1) {
			start, end := idx[2], idx[3]
			if taken[start] {
				continue
			}
			value := q[start:end]
			if p.typ == EntityAgendaItem {
				value = normalize.Code(strings.ToUpper(value))
				if !normalize.Valid(value) {
					continue
				}
			}
			taken[start] = true
			hits = append(hits, found{Entity{Type: p.typ, Value: value}, start})
		}
	}

	// Insertion order follows pattern order; report in question order.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	seen := make(map[Entity]bool)
	var out []Entity
	for _, h := range hits {
		if !seen[h.Entity] {
			seen[h.Entity] = true
			out = append(out, h.Entity)
		}
	}
	return out
}

func singleFocus(lower string, tokens []string) Focus {
	specific, contextual := 0, 0
	for _, t := range tokens {
		if limitingWords[t] {
			specific += 3
		}
		if relationshipWord[t] {
			contextual += 3
		}
	}
	if whatIsRe.MatchString(lower) {
		specific += 2
	}
	if len(tokens) <= 4 {
		specific += 2
	}
	for _, n := range detailNouns {
		if strings.Contains(lower, n) {
			specific++
		}
	}
	if specific >= contextual {
		return FocusSpecific
	}
	return FocusContextual
}

func multiFocus(lower string, tokens []string) Focus {
	comparison, specific, contextual := 0, 0, 0
	for _, t := range tokens {
		if comparisonVerbs[t] {
			comparison += 3
		}
		if limitingWords[t] {
			specific += 3
		}
		if relationshipWord[t] {
			contextual += 2
		}
	}
	for _, w := range comparisonWords {
		if containsWord(tokens, lower, w) {
			comparison += 2
		}
	}
	if strings.Contains(lower, "what is the difference") || strings.Contains(lower, "what are the differences") {
		comparison += 2
	}
	if whatIsRe.MatchString(lower) {
		specific += 2
	}
	if betweenAndRe.MatchString(lower) {
		contextual += 3
	}

	switch {
	case comparison > 0 && comparison >= specific && comparison >= contextual:
		return FocusComparison
	case specific > contextual:
		return FocusMultiple
	default:
		return FocusContextual
	}
}

// containsWord matches single words against tokens and phrases against the
// whole question.
func containsWord(tokens []string, lower, w string) bool {
	if strings.Contains(w, " ") {
		return strings.Contains(lower, w)
	}
	for _, t := range tokens {
		if t == w {
			return true
		}
	}
	return false
}

func withSources(p Params) Params {
	p.TrackSources = true
	p.IncludeSourceMetadata = true
	p.CitationStyle = "inline"
	return p
}

func intPtr(n int) *int { return &n }
