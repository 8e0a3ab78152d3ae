package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string, opts Options) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	last := totalPages
	if opts.MaxPages > 0 && opts.MaxPages < last {
		last = opts.MaxPages
	}

	res := &ParseResult{TotalPages: totalPages, Method: "native"}
	for i := 1; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("pdf: page extraction failed", "path", path, "page", i, "error", err)
			continue
		}
		res.Pages = append(res.Pages, Page{Number: i, Text: cleanPageText(text)})
	}

	return res, nil
}

// cleanPageText trims each line and drops runs of blank lines that the
// plain-text extractor leaves between positioned text runs.
func cleanPageText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
