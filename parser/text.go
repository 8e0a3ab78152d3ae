package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextParser handles plain text files. Form feeds split pages, which is
// how pdftotext-style exports preserve page boundaries.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md"} }

func (p *TextParser) Parse(ctx context.Context, path string, opts Options) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	raw := strings.Split(string(data), "\f")
	res := &ParseResult{TotalPages: len(raw), Method: "native"}
	for i, text := range raw {
		if opts.MaxPages > 0 && i >= opts.MaxPages {
			break
		}
		res.Pages = append(res.Pages, Page{Number: i + 1, Text: strings.TrimSpace(text)})
	}
	return res, nil
}
