package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when no parser handles a file extension.
var ErrUnsupportedFormat = errors.New("parser: unsupported format")

type Registry struct {
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&PDFParser{}, &TextParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return p, nil
}

func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}

// Parse picks a parser by file extension.
func (r *Registry) Parse(ctx context.Context, path string, opts Options) (*ParseResult, error) {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	p, err := r.Get(format)
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, path, opts)
}

// Extract returns the full plain text of a file.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	res, err := r.Parse(ctx, path, Options{})
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}

// ExtractPages returns the text of at most maxPages pages together with the
// document's total page count.
func (r *Registry) ExtractPages(ctx context.Context, path string, maxPages int) (string, int, error) {
	res, err := r.Parse(ctx, path, Options{MaxPages: maxPages})
	if err != nil {
		return "", 0, err
	}
	return res.Text(), res.TotalPages, nil
}
