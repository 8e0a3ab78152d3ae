package linker

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"
)

// Report summarizes one meeting's linking outcome.
type Report struct {
	Date       string         `json:"date"`
	Total      int            `json:"total"`
	Linked     int            `json:"linked"`
	Unlinked   int            `json:"unlinked"`
	Failed     int            `json:"failed"`
	Items      int            `json:"items"`
	ByStrategy map[string]int `json:"by_strategy"`
	ByType     map[string]int `json:"by_type"`
}

// Report computes the summary counts.
func (ml *MeetingLinks) Report() Report {
	r := Report{
		Date:       ml.Date.ISO(),
		Items:      len(ml.Items),
		Unlinked:   len(ml.Unlinked),
		Failed:     len(ml.Failed),
		ByStrategy: make(map[string]int),
		ByType:     make(map[string]int),
	}
	for _, docs := range ml.Items {
		for _, d := range docs {
			r.Linked++
			r.ByStrategy[d.Strategy]++
			r.ByType[d.DocumentType]++
		}
	}
	for _, d := range ml.Unlinked {
		r.ByType[d.DocumentType]++
	}
	r.Total = r.Linked + r.Unlinked + r.Failed
	return r
}

const (
	summarySheet   = "Summary"
	documentsSheet = "Documents"
	failedSheet    = "Failed"
)

// WriteReportXLSX writes an Excel workbook with a summary row per meeting, a
// row per processed document, and a row per failure.
func WriteReportXLSX(w io.Writer, links ...*MeetingLinks) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("linker: report: %w", err)
	}
	for _, s := range []string{documentsSheet, failedSheet} {
		if _, err := f.NewSheet(s); err != nil {
			return fmt.Errorf("linker: report: %w", err)
		}
	}

	sorted := append([]*MeetingLinks(nil), links...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.ISO() < sorted[j].Date.ISO() })

	summary := [][]interface{}{{"Meeting", "Documents", "Linked", "Unlinked", "Failed", "Items", "Regex", "LLM"}}
	docs := [][]interface{}{{"Meeting", "Document", "Type", "Item", "Strategy", "Title", "File"}}
	failed := [][]interface{}{{"Meeting", "File", "Error"}}

	for _, ml := range sorted {
		r := ml.Report()
		summary = append(summary, []interface{}{
			r.Date, r.Total, r.Linked, r.Unlinked, r.Failed, r.Items,
			r.ByStrategy["regex"], r.ByStrategy["llm"],
		})
		for _, d := range ml.Documents() {
			code := d.ItemCode
			if code == "" {
				code = "NOT_FOUND"
			}
			docs = append(docs, []interface{}{
				r.Date, d.DocumentNumber, d.DocumentType, code, d.Strategy, truncate(d.Title, 100), d.Filename,
			})
		}
		for _, fd := range ml.Failed {
			failed = append(failed, []interface{}{r.Date, fd.Path, fd.Error})
		}
	}

	for sheet, rows := range map[string][][]interface{}{
		summarySheet:   summary,
		documentsSheet: docs,
		failedSheet:    failed,
	} {
		if err := writeRows(f, sheet, rows); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("linker: writing report: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("linker: report %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
