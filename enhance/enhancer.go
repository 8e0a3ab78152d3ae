package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Placeholder titles for items whose title is missing.
const (
	PlaceholderItem       = "Agenda Item Discussion"
	PlaceholderTranscript = "Verbatim Transcript Discussion"
)

// Enhancement records what was appended to an answer.
type Enhancement struct {
	Applied         bool     `json:"applied"`
	QueryDate       string   `json:"query_date"`
	TotalItemsFound int      `json:"total_items_found"`
	SourceDocIDs    []string `json:"source_doc_ids"`
}

// Result is an answer from the retrieval engine.
type Result struct {
	Answer      string       `json:"answer"`
	Method      string       `json:"method,omitempty"`
	Enhancement *Enhancement `json:"structural_enhancement,omitempty"`
}

// Enhancer appends canonical item listings to completeness answers.
type Enhancer struct {
	cache StructureCache
}

// New creates an Enhancer reading from cache.
func New(cache StructureCache) *Enhancer {
	return &Enhancer{cache: cache}
}

// Enhance returns res unchanged unless question asks for a meeting's full
// listing, names a date, and a structure for that date is cached. In that
// case the listing is appended after the original answer, which is kept
// verbatim, and the enhancement is recorded.
func (e *Enhancer) Enhance(ctx context.Context, question string, res Result) Result {
	if e == nil || e.cache == nil || !IsCompletenessQuery(question) {
		return res
	}
	date, ok := ExtractDate(question)
	if !ok {
		slog.Debug("enhance: completeness query without a date", "question", question)
		return res
	}

	s, found, err := e.cache.Get(ctx, date.ISO())
	if err != nil {
		slog.Warn("enhance: structure lookup failed", "date", date.ISO(), "error", err)
		return res
	}
	if !found {
		slog.Debug("enhance: no structure cached", "date", date.ISO())
		return res
	}

	out := res
	out.Answer = res.Answer + Render(s)
	out.Enhancement = &Enhancement{
		Applied:         true,
		QueryDate:       date.ISO(),
		TotalItemsFound: len(s.Items),
		SourceDocIDs:    append([]string(nil), s.DocIDs...),
	}
	slog.Info("enhance: listing appended", "date", date.ISO(), "items", len(s.Items))
	return out
}

// Render formats the grouped listing appended to an answer.
func Render(s *Structure) string {
	var b strings.Builder
	b.WriteString("\n\n## Structural Completeness\n\n")
	fmt.Fprintf(&b, "### Complete Agenda Items for %s\n\n", s.Date.ISO())
	fmt.Fprintf(&b, "Summary: %d total agenda items identified from %d source documents\n",
		len(s.Items), len(s.DocIDs))

	ordinances, resolutions, other := s.Grouped()
	for _, g := range []struct {
		heading string
		items   []Item
	}{
		{"Ordinances", ordinances},
		{"Resolutions", resolutions},
		{"Other Agenda Items", other},
	} {
		if len(g.items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n", g.heading)
		for _, it := range g.items {
			fmt.Fprintf(&b, "- %s: %s\n", it.Code, displayTitle(it))
		}
	}
	return b.String()
}

func displayTitle(it Item) string {
	title := strings.TrimSpace(it.Title)
	switch title {
	case "", "****", "No title", "Unknown":
		if it.DocumentType == KindTranscript {
			return PlaceholderTranscript
		}
		return PlaceholderItem
	}
	return title
}
