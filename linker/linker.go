// Package linker associates ordinance, resolution and transcript files with
// the agenda items of the meeting that introduced them.
package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/brunobiangulo/agendagraph/llm"
	"github.com/brunobiangulo/agendagraph/normalize"
)

var (
	// ErrNoDocumentNumber is returned for files without a YYYY-NN prefix.
	ErrNoDocumentNumber = errors.New("linker: filename has no document number")

	// ErrEmptyText is returned when extraction yields no text.
	ErrEmptyText = errors.New("linker: no text extracted")
)

const (
	maxConcurrency = 8

	// defaultDocTimeout caps extraction plus model calls for one document.
	defaultDocTimeout = 90 * time.Second
)

// TextExtractor produces the plain text of a document file.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// LinkedDocument is an ordinance or resolution matched to a meeting. An
// empty ItemCode means no strategy found a reference.
type LinkedDocument struct {
	Path           string   `json:"path"`
	Filename       string   `json:"filename"`
	DocumentNumber string   `json:"document_number"`
	DocumentType   string   `json:"document_type"`
	Title          string   `json:"title"`
	ItemCode       string   `json:"item_code,omitempty"`
	Strategy       string   `json:"strategy,omitempty"`
	Metadata       Metadata `json:"metadata"`
	Text           string   `json:"-"`
}

// FailedDocument records a candidate that could not be processed.
type FailedDocument struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// MeetingLinks is the per-meeting code to documents mapping.
type MeetingLinks struct {
	Date     normalize.Date              `json:"date"`
	Items    map[string][]LinkedDocument `json:"items"`
	Unlinked []LinkedDocument            `json:"unlinked"`
	Failed   []FailedDocument            `json:"failed"`
}

// Codes returns the linked item codes in sorted order.
func (ml *MeetingLinks) Codes() []string {
	codes := make([]string, 0, len(ml.Items))
	for c := range ml.Items {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Documents returns every processed document, linked ones first by code.
func (ml *MeetingLinks) Documents() []LinkedDocument {
	var out []LinkedDocument
	for _, c := range ml.Codes() {
		out = append(out, ml.Items[c]...)
	}
	return append(out, ml.Unlinked...)
}

// Linker runs the code-finding strategies over each candidate document.
type Linker struct {
	extractor   TextExtractor
	strategies  []Strategy
	concurrency int
	timeout     time.Duration
}

// Option configures a Linker.
type Option func(*Linker)

// WithStrategies replaces the strategy chain.
func WithStrategies(s ...Strategy) Option {
	return func(l *Linker) { l.strategies = s }
}

// WithLLMFallback appends a model-backed strategy after the existing ones.
func WithLLMFallback(p llm.Provider, opts ...LLMOption) Option {
	return func(l *Linker) {
		if p != nil {
			l.strategies = append(l.strategies, NewLLMStrategy(p, opts...))
		}
	}
}

// WithConcurrency bounds the number of documents processed at once.
func WithConcurrency(n int) Option {
	return func(l *Linker) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithDocumentTimeout sets the per-document deadline.
func WithDocumentTimeout(d time.Duration) Option {
	return func(l *Linker) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// New creates a Linker. Without options it uses only the pattern rules, at
// min(NumCPU, 8) documents in parallel.
func New(extractor TextExtractor, opts ...Option) *Linker {
	l := &Linker{
		extractor:   extractor,
		strategies:  []Strategy{NewRegexStrategy()},
		concurrency: min(runtime.NumCPU(), maxConcurrency),
		timeout:     defaultDocTimeout,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Strategies returns the names of the configured strategies in order.
func (l *Linker) Strategies() []string {
	names := make([]string, len(l.strategies))
	for i, s := range l.strategies {
		names[i] = s.Name()
	}
	return names
}

// docResult is the independent output of one document task.
type docResult struct {
	doc  LinkedDocument
	path string
	err  error
}

// LinkMeeting selects the candidate documents for date in each directory and
// links them. Failures are confined to the document that caused them. If ctx
// is cancelled, unscheduled documents are recorded as failed and the partial
// result is returned together with ctx's error.
func (l *Linker) LinkMeeting(ctx context.Context, date normalize.Date, dirs ...string) (*MeetingLinks, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, dir := range dirs {
		found, err := SelectCandidates(dir, date)
		if err != nil {
			slog.Warn("linker: skipping directory", "dir", dir, "error", err)
			continue
		}
		for _, p := range found {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}

	links := &MeetingLinks{Date: date, Items: make(map[string][]LinkedDocument)}
	if len(paths) == 0 {
		slog.Info("linker: no candidate documents", "date", date.ISO(), "dirs", dirs)
		return links, nil
	}

	slog.Info("linker: processing documents", "date", date.ISO(),
		"candidates", len(paths), "concurrency", l.concurrency)

	var (
		wg      sync.WaitGroup
		sem     = make(chan struct{}, l.concurrency)
		results = make([]docResult, len(paths))
		start   = time.Now()
	)

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = docResult{path: path, err: ctx.Err()}
				return
			}

			// context.WithoutCancel keeps an in-flight document running to
			// completion or timeout after the caller aborts the batch.
			docCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
			defer cancel()

			docStart := time.Now()
			doc, err := l.processDocument(docCtx, path)
			results[i] = docResult{doc: doc, path: path, err: err}
			if err == nil {
				slog.Debug("linker: document processed", "file", filepath.Base(path),
					"item", doc.ItemCode, "strategy", doc.Strategy,
					"elapsed", time.Since(docStart).Round(time.Millisecond))
			}
		}(i, path)
	}

	wg.Wait()

	for _, r := range results {
		switch {
		case r.err != nil:
			slog.Warn("linker: document failed", "file", filepath.Base(r.path), "error", r.err)
			links.Failed = append(links.Failed, FailedDocument{Path: r.path, Error: r.err.Error()})
		case r.doc.ItemCode == "":
			links.Unlinked = append(links.Unlinked, r.doc)
		default:
			links.Items[r.doc.ItemCode] = append(links.Items[r.doc.ItemCode], r.doc)
		}
	}

	rep := links.Report()
	slog.Info("linker: meeting linked", "date", date.ISO(),
		"linked", rep.Linked, "unlinked", rep.Unlinked, "failed", rep.Failed,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return links, ctx.Err()
}

func (l *Linker) processDocument(ctx context.Context, path string) (LinkedDocument, error) {
	number, ok := DocumentNumber(path)
	if !ok {
		return LinkedDocument{}, fmt.Errorf("%w: %s", ErrNoDocumentNumber, filepath.Base(path))
	}

	text, err := l.extractor.Extract(ctx, path)
	if err != nil {
		return LinkedDocument{}, fmt.Errorf("extracting %s: %w", filepath.Base(path), err)
	}
	if text == "" {
		return LinkedDocument{}, fmt.Errorf("%w: %s", ErrEmptyText, filepath.Base(path))
	}

	docType := DetectType(text, path)
	doc := LinkedDocument{
		Path:           path,
		Filename:       filepath.Base(path),
		DocumentNumber: number,
		DocumentType:   docType,
		Title:          Title(text, docType),
		Metadata:       ExtractMetadata(text, docType),
		Text:           text,
	}

	code, strategy, err := l.FindCode(ctx, text)
	if err != nil {
		return LinkedDocument{}, fmt.Errorf("%s: %w", doc.Filename, err)
	}
	doc.ItemCode, doc.Strategy = code, strategy
	return doc, nil
}

// FindCode runs the strategy chain and returns the first code found along
// with the name of the strategy that found it.
func (l *Linker) FindCode(ctx context.Context, text string) (code, strategy string, err error) {
	for _, s := range l.strategies {
		code, ok, err := s.Attempt(ctx, text)
		if err != nil {
			return "", "", fmt.Errorf("strategy %s: %w", s.Name(), err)
		}
		if ok {
			return code, s.Name(), nil
		}
	}
	return "", "", nil
}
