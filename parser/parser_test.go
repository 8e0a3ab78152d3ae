package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// ---------------------------------------------------------------------------
// Registry tests
// ---------------------------------------------------------------------------

func TestRegistryBuiltInParsers(t *testing.T) {
	reg := NewRegistry()

	for _, format := range []string{"pdf", "txt", "md"} {
		t.Run(format, func(t *testing.T) {
			p, err := reg.Get(format)
			if err != nil {
				t.Fatalf("Get(%q) returned error: %v", format, err)
			}
			found := false
			for _, f := range p.SupportedFormats() {
				if f == format {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("parser for %q does not list it in SupportedFormats(): %v",
					format, p.SupportedFormats())
			}
		})
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry()

	for _, format := range []string{"docx", "csv", "json", "html", ""} {
		t.Run("format_"+format, func(t *testing.T) {
			p, err := reg.Get(format)
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("Get(%q) error = %v, want ErrUnsupportedFormat", format, err)
			}
			if p != nil {
				t.Errorf("Get(%q) expected nil parser for unknown format", format)
			}
		})
	}
}

func TestRegistryCustomParser(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Get("custom"); err == nil {
		t.Fatal("expected error for unregistered format")
	}
	reg.Register("custom", &TextParser{})
	if _, err := reg.Get("custom"); err != nil {
		t.Fatalf("Get after Register: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Text extraction
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestTextParserPages(t *testing.T) {
	path := writeFile(t, "transcript.txt", "page one\f  page two  \fpage three")

	res, err := (&TextParser{}).Parse(context.Background(), path, Options{MaxPages: 2})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", res.TotalPages)
	}
	if len(res.Pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(res.Pages))
	}
	if res.Pages[1].Text != "page two" || res.Pages[1].Number != 2 {
		t.Errorf("page 2 = %+v", res.Pages[1])
	}
	if got, want := res.Text(), "page one\n\npage two"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestRegistryExtract(t *testing.T) {
	path := writeFile(t, "2024-01 - 01_09_2024.txt", "AN ORDINANCE OF THE CITY COMMISSION\n(Agenda Item: E-1)")

	text, err := NewRegistry().Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "AN ORDINANCE OF THE CITY COMMISSION\n(Agenda Item: E-1)" {
		t.Errorf("Extract = %q", text)
	}
}

func TestRegistryExtractMissingFile(t *testing.T) {
	_, err := NewRegistry().Extract(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	if err == nil {
		t.Fatal("expected error for missing PDF")
	}
}

func TestCleanPageText(t *testing.T) {
	got := cleanPageText("  RESOLUTION NO. 2024-01  \n\n\n\n  WHEREAS the City  \n")
	want := "RESOLUTION NO. 2024-01\n\nWHEREAS the City"
	if got != want {
		t.Errorf("cleanPageText = %q, want %q", got, want)
	}
}

func TestRegistryExtractPages(t *testing.T) {
	path := writeFile(t, "01_09_2024 - Verbatim Transcripts - E-1.txt", "one\ftwo\fthree\ffour")

	text, total, err := NewRegistry().ExtractPages(context.Background(), path, 3)
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if text != "one\n\ntwo\n\nthree" {
		t.Errorf("text = %q", text)
	}
}
