// Package export renders processing results as downloadable CSV and XLSX
// files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"docproc/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the export header row, shared by the CSV and XLSX writers.
var columns = []string{
	"File Name",
	"File Type",
	"File Size",
	"Status",
	"Document Type",
	"Classification Source",
	"AI Confidence",
	"OCR Confidence",
	"OCR Backend",
	"Page Count",
	"Language",
	"Word Count",
	"Summary",
	"Warnings",
	"Uploaded At",
	"Processed At",
}

// Writer wraps csv.Writer for exporting processing results as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteResults converts a batch of results to CSV rows and writes them.
func (w *Writer) WriteResults(results []domain.ProcessingResult) error {
	for i := range results {
		if err := w.csv.Write(resultToRow(&results[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}

// resultToRow flattens one result into the export columns. The document type
// column prefers the AI classification and falls back to the keyword
// heuristic, with the source column saying which one it was.
func resultToRow(res *domain.ProcessingResult) []string {
	docType, source := classification(res)

	aiConfidence := ""
	language := ""
	wordCount := ""
	summary := ""
	if res.Analysis != nil {
		aiConfidence = formatFloat(res.Analysis.Confidence)
		language = res.Analysis.Language
		wordCount = strconv.Itoa(res.Analysis.WordCount)
		summary = res.Analysis.Summary
	}

	return []string{
		res.OriginalName,
		string(res.FileType),
		strconv.FormatInt(res.FileSize, 10),
		string(res.Status),
		docType,
		source,
		aiConfidence,
		formatFloat(res.OCRConfidence),
		res.OCRBackend,
		strconv.Itoa(res.PageCount),
		language,
		wordCount,
		summary,
		strings.Join(res.Warnings, "; "),
		formatTime(&res.UploadedAt),
		formatTime(res.ProcessedAt),
	}
}

func classification(res *domain.ProcessingResult) (docType, source string) {
	switch {
	case res.Analysis != nil:
		return string(res.Analysis.DocumentType), "ai"
	case res.HeuristicType != "":
		return string(res.HeuristicType), "heuristic"
	default:
		return "", ""
	}
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
