// Package engine is the boundary to the retrieval engine that answers
// routed questions over the indexed meeting records.
//
// Two implementations are provided. HTTPEngine talks JSON to an external
// GraphRAG-style service. LocalEngine answers from the local graph store
// with a chat model and needs no extra service.
package engine

import (
	"context"
	"errors"

	"github.com/brunobiangulo/agendagraph/router"
)

var (
	// ErrNoHandle is returned when a query names no index.
	ErrNoHandle = errors.New("engine: no index handle")

	// ErrRequestFailed wraps non-retryable service errors and exhausted retries.
	ErrRequestFailed = errors.New("engine: request failed")
)

// InsufficientAnswer is returned when nothing in the index relates to the
// question.
const InsufficientAnswer = "I do not have enough information in the indexed meeting records to answer this question."

// Handle identifies an index built by an Engine.
type Handle string

// Document is one unit of text handed to the engine for indexing.
type Document struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Corpus is the set of documents making up one index.
type Corpus struct {
	Name      string     `json:"name"`
	Documents []Document `json:"documents"`
}

// Answer is an engine's reply. Sources lists the ids of the records the
// answer drew on, most relevant first.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
}

// Engine indexes a corpus and answers routed questions against it.
type Engine interface {
	Index(ctx context.Context, corpus Corpus) (Handle, error)
	Query(ctx context.Context, h Handle, question string, route router.Route) (Answer, error)
}
