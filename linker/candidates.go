package linker

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/brunobiangulo/agendagraph/normalize"
)

// docNumberRe extracts the document number prefix from a filename such as
// "2024-01 - 01_09_2024.pdf".
var docNumberRe = regexp.MustCompile(`^(\d{4}-\d{2,3})`)

// DocumentNumber returns the YYYY-NN prefix of a document filename.
func DocumentNumber(path string) (string, bool) {
	m := docNumberRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SelectCandidates returns the PDFs under dir (recursively, so resolutions
// kept in YYYY/ subdirectories are found) whose filename ends with the
// meeting date in MM_DD_YYYY form. Only when no file matches exactly does it
// fall back to filenames that merely contain the date, with either
// underscores or dashes. Results are sorted and unique.
func SelectCandidates(dir string, date normalize.Date) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("linker: candidate dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("linker: candidate dir %s is not a directory", dir)
	}

	exact, err := globUnder(dir, "**/*"+date.Underscore()+".pdf")
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}

	return globUnder(dir,
		"**/*"+date.Underscore()+"*.pdf",
		"**/*"+date.Dashed()+"*.pdf",
	)
}

func globUnder(dir string, patterns ...string) ([]string, error) {
	fsys := os.DirFS(dir)
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		matches, err := doublestar.Glob(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("linker: glob %q: %w", p, err)
		}
		for _, m := range matches {
			full := filepath.Join(dir, filepath.FromSlash(m))
			if !seen[full] {
				seen[full] = true
				out = append(out, full)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
