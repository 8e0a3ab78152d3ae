// Package agendagraph links municipal meeting records into a knowledge
// graph and answers questions about them.
//
// A meeting is processed from its agenda: the agenda's items are parsed,
// the ordinances, resolutions and transcripts filed for the same date are
// tied to those items, the people named are resolved to canonical persons,
// and the result is written to the graph store. Questions are routed to a
// retrieval method, answered by a retrieval engine, and answers that ask for
// a meeting's full listing are completed from the parsed agenda.
package agendagraph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/agendagraph/agenda"
	"github.com/brunobiangulo/agendagraph/dedup"
	"github.com/brunobiangulo/agendagraph/engine"
	"github.com/brunobiangulo/agendagraph/enhance"
	"github.com/brunobiangulo/agendagraph/graph"
	"github.com/brunobiangulo/agendagraph/linker"
	"github.com/brunobiangulo/agendagraph/llm"
	"github.com/brunobiangulo/agendagraph/metrics"
	"github.com/brunobiangulo/agendagraph/normalize"
	"github.com/brunobiangulo/agendagraph/parser"
	"github.com/brunobiangulo/agendagraph/router"
	"github.com/brunobiangulo/agendagraph/store"
)

// Engine is the main entry point.
type Engine interface {
	// ProcessMeeting parses an agenda, links the documents and transcripts
	// filed for its date, resolves the people named, writes the graph, and
	// caches the meeting structure. Reprocessing adds nothing new.
	ProcessMeeting(ctx context.Context, agendaPath string) (*MeetingResult, error)

	// Resolve maps a raw person name to its canonical form among the names
	// seen so far.
	Resolve(raw string) string

	// Route decides which retrieval method should answer a question.
	Route(question string) router.Route

	// Query routes a question, asks the retrieval engine, and completes
	// listing questions from the cached meeting structure.
	Query(ctx context.Context, question string) (*Answer, error)

	// Structure returns the cached item listing for a meeting date.
	Structure(ctx context.Context, date normalize.Date) (*enhance.Structure, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Metrics returns the pipeline's collectors.
	Metrics() *metrics.Metrics

	// Close cleanly shuts down the engine.
	Close() error
}

// MeetingResult reports what processing one agenda produced.
type MeetingResult struct {
	Date        normalize.Date          `json:"date"`
	Agenda      *agenda.Meeting         `json:"agenda"`
	Links       *linker.MeetingLinks    `json:"links"`
	Transcripts *linker.TranscriptLinks `json:"transcripts,omitempty"`
	People      []dedup.Person          `json:"people,omitempty"`
	Graph       graph.Stats             `json:"graph"`
	Structure   *enhance.Structure      `json:"structure"`
	Handle      engine.Handle           `json:"handle,omitempty"`
	Elapsed     time.Duration           `json:"elapsed"`
}

// Answer is the result of a query.
type Answer struct {
	RequestID   string               `json:"request_id"`
	Question    string               `json:"question"`
	Text        string               `json:"answer"`
	Sources     []string             `json:"sources,omitempty"`
	Route       router.Route         `json:"route"`
	Enhancement *enhance.Enhancement `json:"structural_enhancement,omitempty"`
	Elapsed     time.Duration        `json:"elapsed"`
}

// Option overrides a component that New would otherwise build from Config.
type Option func(*options)

type options struct {
	provider  llm.Provider
	retrieval engine.Engine
	cache     enhance.StructureCache
	extractor linker.TextExtractor
	directory *dedup.Directory
	metrics   *metrics.Metrics
}

// WithProvider sets the chat model used by the linker fallback and the
// local retrieval engine.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithRetrievalEngine sets the engine that answers questions.
func WithRetrievalEngine(e engine.Engine) Option {
	return func(o *options) { o.retrieval = e }
}

// WithStructureCache sets where meeting structures are kept.
func WithStructureCache(c enhance.StructureCache) Option {
	return func(o *options) { o.cache = c }
}

// WithExtractor sets how text is read from agenda and document files.
func WithExtractor(x linker.TextExtractor) Option {
	return func(o *options) { o.extractor = x }
}

// WithDirectory shares a person directory across pipelines.
func WithDirectory(d *dedup.Directory) Option {
	return func(o *options) { o.directory = d }
}

// WithMetrics records into m instead of a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// pipeline is the concrete implementation of Engine.
type pipeline struct {
	cfg       Config
	store     *store.Store
	extractor linker.TextExtractor
	linker    *linker.Linker
	people    *dedup.Directory
	builder   *graph.Builder
	cache     enhance.StructureCache
	enhancer  *enhance.Enhancer
	retrieval engine.Engine
	metrics   *metrics.Metrics

	closers []io.Closer

	mu     sync.RWMutex
	handle engine.Handle
}

// New creates a pipeline with the given configuration.
func New(cfg Config, opts ...Option) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	s, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	p := &pipeline{cfg: cfg, store: s, closers: []io.Closer{s}}

	chat := o.provider
	if chat == nil && cfg.LLM.Provider != "" {
		chat, err = cfg.LLM.provider()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating llm provider: %w", err)
		}
	}

	p.extractor = o.extractor
	if p.extractor == nil {
		p.extractor = parser.NewRegistry()
	}

	lopts := []linker.Option{
		linker.WithConcurrency(cfg.Concurrency),
		linker.WithDocumentTimeout(time.Duration(cfg.DocumentTimeout)),
	}
	if cfg.LLMFallback {
		var llmOpts []linker.LLMOption
		if cfg.LLMRateLimit > 0 {
			llmOpts = append(llmOpts, linker.WithRateLimit(cfg.LLMRateLimit, cfg.LLMBurst))
		}
		lopts = append(lopts, linker.WithLLMFallback(chat, llmOpts...))
	}
	p.linker = linker.New(p.extractor, lopts...)

	p.people = o.directory
	if p.people == nil {
		var ropts []dedup.Option
		if cfg.FuzzyCutoff > 0 {
			ropts = append(ropts, dedup.WithCutoff(cfg.FuzzyCutoff))
		}
		if len(cfg.Aliases) > 0 {
			ropts = append(ropts, dedup.WithAliases(cfg.Aliases))
		}
		p.people = dedup.NewDirectory(dedup.NewResolver(ropts...))
	}
	p.builder = graph.NewBuilder(s, graph.WithDirectory(p.people))

	p.cache = o.cache
	if p.cache == nil {
		p.cache, err = newCache(cfg.Cache)
		if err != nil {
			p.Close()
			return nil, err
		}
		if c, ok := p.cache.(io.Closer); ok {
			p.closers = append(p.closers, c)
		}
	}
	p.enhancer = enhance.New(p.cache)

	p.retrieval = o.retrieval
	if p.retrieval == nil {
		p.retrieval = newRetrieval(cfg.Retrieval, s, chat, p.Resolve)
	}

	p.metrics = o.metrics
	if p.metrics == nil {
		p.metrics = metrics.New()
	}

	slog.Info("agendagraph: pipeline ready",
		"db", cfg.resolveDBPath(),
		"strategies", p.linker.Strategies(),
		"retrieval", cfg.Retrieval.Engine,
		"cache", cfg.Cache.Backend)
	return p, nil
}

func newCache(c CacheConfig) (enhance.StructureCache, error) {
	if c.Backend != "redis" {
		return enhance.NewMemoryCache(), nil
	}
	var ropts []enhance.RedisOption
	if c.Prefix != "" {
		ropts = append(ropts, enhance.WithPrefix(c.Prefix))
	}
	if c.TTL > 0 {
		ropts = append(ropts, enhance.WithTTL(time.Duration(c.TTL)))
	}
	rc, err := enhance.NewRedisCache(c.RedisURL, ropts...)
	if err != nil {
		return nil, fmt.Errorf("creating structure cache: %w", err)
	}
	return rc, nil
}

func newRetrieval(c RetrievalConfig, s *store.Store, chat llm.Provider, resolve func(string) string) engine.Engine {
	if c.Engine == "http" {
		hopts := []engine.HTTPOption{engine.WithAPIKey(c.APIKey)}
		if c.Timeout > 0 {
			hopts = append(hopts, engine.WithTimeout(time.Duration(c.Timeout)))
		}
		return engine.NewHTTP(c.URL, hopts...)
	}
	lopts := []engine.LocalOption{engine.WithPersonResolver(resolve)}
	if c.MaxVertices > 0 {
		lopts = append(lopts, engine.WithMaxVertices(c.MaxVertices))
	}
	return engine.NewLocal(s, chat, lopts...)
}

// ProcessMeeting runs the full pipeline for one agenda file.
func (p *pipeline) ProcessMeeting(ctx context.Context, agendaPath string) (*MeetingResult, error) {
	start := time.Now()
	absPath, err := filepath.Abs(agendaPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	filename := filepath.Base(absPath)

	date, ok := agenda.ParseFilenameDate(filename)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoMeetingDate, filename)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return nil, fmt.Errorf("hashing agenda: %w", err)
	}
	fileID, err := p.store.UpsertSourceFile(ctx, store.SourceFile{
		Path:        absPath,
		Filename:    filename,
		Kind:        "agenda",
		MeetingDate: date.ISO(),
		ContentHash: hash,
		Status:      "processing",
	})
	if err != nil {
		return nil, fmt.Errorf("recording agenda: %w", err)
	}

	slog.Info("process: parsing agenda", "file", filename, "date", date.ISO())
	text, err := p.extractor.Extract(ctx, absPath)
	if err != nil {
		p.store.UpdateSourceFileStatus(ctx, fileID, "error")
		return nil, fmt.Errorf("%w: %s: %v", ErrParsingFailed, filename, err)
	}
	m := agenda.Parse(text, date, filename)
	if len(m.Items()) == 0 {
		p.store.UpdateSourceFileStatus(ctx, fileID, "error")
		return nil, fmt.Errorf("%w: %s", ErrEmptyAgenda, filename)
	}
	slog.Info("process: agenda parsed", "date", date.ISO(),
		"sections", len(m.Sections), "items", len(m.Items()))

	res := &MeetingResult{Date: date, Agenda: m}

	res.Links, err = p.linker.LinkMeeting(ctx, date, p.cfg.DocumentDirs...)
	if err != nil {
		p.store.UpdateSourceFileStatus(ctx, fileID, "error")
		return res, fmt.Errorf("linking documents: %w", err)
	}
	p.metrics.ObserveLinks(res.Links)

	if p.cfg.TranscriptDir != "" {
		res.Transcripts, err = p.linker.LinkTranscripts(ctx, date, p.cfg.TranscriptDir)
		if err != nil {
			p.store.UpdateSourceFileStatus(ctx, fileID, "error")
			return res, fmt.Errorf("linking transcripts: %w", err)
		}
	}

	if err := p.buildGraph(ctx, res); err != nil {
		p.store.UpdateSourceFileStatus(ctx, fileID, "error")
		return res, err
	}
	res.People = p.sponsors(m)

	res.Structure = enhance.BuildStructure(m, res.Links)
	if res.Transcripts != nil {
		res.Structure.AddTranscripts(res.Transcripts)
	}
	if err := p.cache.Put(ctx, res.Structure); err != nil {
		slog.Warn("process: caching structure failed", "date", date.ISO(), "error", err)
	}

	res.Handle = p.index(ctx, res)
	p.recordDocuments(ctx, res)
	p.store.UpdateSourceFileStatus(ctx, fileID, "ready")
	p.metrics.MeetingProcessed()

	res.Elapsed = time.Since(start)
	slog.Info("process: meeting ready",
		"date", date.ISO(),
		"items", len(res.Structure.Items),
		"vertices", res.Graph.Vertices,
		"edges", res.Graph.Edges,
		"people", len(res.People),
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func (p *pipeline) buildGraph(ctx context.Context, res *MeetingResult) error {
	steps := []struct {
		name string
		run  func() (graph.Stats, error)
	}{
		{"meeting", func() (graph.Stats, error) { return p.builder.BuildMeeting(ctx, res.Agenda) }},
		{"documents", func() (graph.Stats, error) { return p.builder.BuildLinks(ctx, res.Links, res.Agenda) }},
		{"transcripts", func() (graph.Stats, error) {
			if res.Transcripts == nil {
				return graph.Stats{}, nil
			}
			return p.builder.BuildTranscripts(ctx, res.Transcripts, res.Agenda)
		}},
	}
	for _, s := range steps {
		st, err := s.run()
		res.Graph.Vertices += st.Vertices
		res.Graph.Edges += st.Edges
		res.Graph.Skipped += st.Skipped
		res.Graph.Failed += st.Failed
		p.metrics.ObserveGraph(st)
		if err != nil {
			return fmt.Errorf("building %s graph: %w", s.name, err)
		}
	}
	return nil
}

// sponsors returns the canonical persons behind the agenda's sponsors.
func (p *pipeline) sponsors(m *agenda.Meeting) []dedup.Person {
	var out []dedup.Person
	seen := make(map[string]bool)
	for _, it := range m.Items() {
		if it.Sponsor == "" {
			continue
		}
		name := p.Resolve(it.Sponsor)
		if seen[name] {
			continue
		}
		if person, ok := p.people.Lookup(name); ok {
			seen[name] = true
			out = append(out, person)
		}
	}
	return out
}

// index hands the meeting's text to the retrieval engine. Failures are
// logged; the graph is already written.
func (p *pipeline) index(ctx context.Context, res *MeetingResult) engine.Handle {
	corpus := engine.Corpus{Name: p.cfg.Retrieval.Corpus}
	for _, it := range res.Agenda.Items() {
		corpus.Documents = append(corpus.Documents, engine.Document{
			ID:    graph.ItemID(res.Date, it.Code),
			Title: it.Code + ": " + it.Title,
			Text:  it.Description,
			Metadata: map[string]any{
				"meeting_date": res.Date.ISO(),
				"item_code":    it.Code,
				"kind":         "agenda_item",
			},
		})
	}
	for _, d := range res.Links.Documents() {
		corpus.Documents = append(corpus.Documents, engine.Document{
			ID:    graph.DocumentID(d.DocumentNumber),
			Title: d.Title,
			Text:  d.Text,
			Metadata: map[string]any{
				"meeting_date":    res.Date.ISO(),
				"item_code":       d.ItemCode,
				"document_number": d.DocumentNumber,
				"kind":            strings.ToLower(d.DocumentType),
			},
		})
	}

	h, err := p.retrieval.Index(ctx, corpus)
	if err != nil {
		slog.Warn("process: indexing failed", "date", res.Date.ISO(), "error", err)
		return ""
	}
	p.setHandle(h)
	return h
}

func (p *pipeline) setHandle(h engine.Handle) {
	p.mu.Lock()
	p.handle = h
	p.mu.Unlock()
}

// currentHandle is the last indexed corpus, or the configured one.
func (p *pipeline) currentHandle() engine.Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.handle == "" {
		return engine.Handle(p.cfg.Retrieval.Corpus)
	}
	return p.handle
}

func (p *pipeline) recordDocuments(ctx context.Context, res *MeetingResult) {
	record := func(path, kind, status string) {
		if _, err := p.store.UpsertSourceFile(ctx, store.SourceFile{
			Path:        path,
			Filename:    filepath.Base(path),
			Kind:        kind,
			MeetingDate: res.Date.ISO(),
			Status:      status,
		}); err != nil {
			slog.Warn("process: recording source file failed", "file", filepath.Base(path), "error", err)
		}
	}
	for _, d := range res.Links.Documents() {
		status := "linked"
		if d.ItemCode == "" {
			status = "unlinked"
		}
		record(d.Path, strings.ToLower(d.DocumentType), status)
	}
	for _, f := range res.Links.Failed {
		record(f.Path, "document", "error")
	}
	if res.Transcripts != nil {
		for _, t := range res.Transcripts.Transcripts {
			record(t.Path, "transcript", "linked")
		}
	}
}

// Resolve maps raw to a canonical name. The outcome is memoized by the
// resolver, but no person is added to the directory.
func (p *pipeline) Resolve(raw string) string {
	return p.people.Resolver().Resolve(raw, p.people.Names())
}

// Route classifies a question.
func (p *pipeline) Route(question string) router.Route {
	r := router.Classify(question)
	p.metrics.ObserveRoute(r)
	slog.Debug("route: classified", "method", r.Method, "intent", r.Intent, "reason", r.Reason)
	return r
}

// Query answers a question.
func (p *pipeline) Query(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if p.retrieval == nil {
		return nil, ErrNoRetrievalEngine
	}
	start := time.Now()
	route := p.Route(question)

	out, err := p.retrieval.Query(ctx, p.currentHandle(), question, route)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	res := p.enhancer.Enhance(ctx, question, enhance.Result{Answer: out.Text, Method: string(route.Method)})
	p.metrics.ObserveEnhancement(res.Enhancement != nil)

	ans := &Answer{
		RequestID:   uuid.NewString(),
		Question:    question,
		Text:        res.Answer,
		Sources:     out.Sources,
		Route:       route,
		Enhancement: res.Enhancement,
		Elapsed:     time.Since(start),
	}
	p.metrics.ObserveQuery(route.Method, ans.Elapsed)

	if err := p.store.LogQuery(ctx, store.QueryLog{
		RequestID:   ans.RequestID,
		Query:       question,
		Answer:      ans.Text,
		Sources:     ans.Sources,
		Method:      string(route.Method),
		RouteParams: route.Params,
		Enhanced:    ans.Enhancement != nil,
		Elapsed:     ans.Elapsed,
	}); err != nil {
		slog.Warn("query: logging failed", "request_id", ans.RequestID, "error", err)
	}

	slog.Info("query: answered",
		"request_id", ans.RequestID,
		"method", route.Method,
		"enhanced", ans.Enhancement != nil,
		"sources", len(ans.Sources),
		"elapsed", ans.Elapsed.Round(time.Millisecond))
	return ans, nil
}

// Structure returns the cached listing for date.
func (p *pipeline) Structure(ctx context.Context, date normalize.Date) (*enhance.Structure, error) {
	s, ok, err := p.cache.Get(ctx, date.ISO())
	if err != nil {
		return nil, fmt.Errorf("reading structure: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStructureNotFound, date.ISO())
	}
	return s, nil
}

// Store returns the underlying store for diagnostic access.
func (p *pipeline) Store() *store.Store { return p.store }

// Metrics returns the pipeline's collectors.
func (p *pipeline) Metrics() *metrics.Metrics { return p.metrics }

// Close shuts down the pipeline.
func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
