// Package parser turns source files into plain page text. It is the
// extraction stage that feeds the linker and the agenda parser; layout
// analysis and OCR are out of its reach.
package parser

import (
	"context"
	"strings"
)

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Pages      []Page // Extracted pages in order; may stop short of TotalPages
	TotalPages int
	Method     string // "native"
	Metadata   map[string]string
}

// Page holds the plain text of one page.
type Page struct {
	Number int
	Text   string
}

// Text joins all extracted pages with blank lines.
func (r *ParseResult) Text() string {
	parts := make([]string, 0, len(r.Pages))
	for _, p := range r.Pages {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Options limits how much of a document is read.
type Options struct {
	// MaxPages stops extraction after this many pages. Zero reads everything.
	MaxPages int
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string, opts Options) (*ParseResult, error)
	SupportedFormats() []string
}
