package ocr

import (
	"context"
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docproc/internal/domain"
)

// TesseractBackend extracts text by shelling out to a local tesseract
// binary. Pages are written as temporary PNG files because tesseract reads
// from disk.
type TesseractBackend struct {
	runner  Runner
	binary  string
	lang    string
	timeout time.Duration
	tmpDir  string
}

// NewTesseractBackend creates the local OCR backend. An empty binary or lang
// falls back to "tesseract" and "eng".
func NewTesseractBackend(runner Runner, binary, lang string, timeout time.Duration) *TesseractBackend {
	if binary == "" {
		binary = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &TesseractBackend{
		runner:  runner,
		binary:  binary,
		lang:    lang,
		timeout: timeout,
		tmpDir:  os.TempDir(),
	}
}

// Name identifies the backend in results and logs.
func (b *TesseractBackend) Name() string {
	return domain.BackendTesseract
}

// Extract runs tesseract twice per page: once for the plain text and once in
// TSV mode for per-word confidences. A TSV failure degrades to a heuristic
// confidence instead of failing the page.
func (b *TesseractBackend) Extract(ctx context.Context, page domain.PreprocessedImage) (domain.ExtractionResult, error) {
	if page.Image == nil {
		return domain.ExtractionResult{}, fmt.Errorf("page %d: nil image", page.Index)
	}

	path, err := b.writeTempPNG(page)
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	defer os.Remove(path)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	raw, err := b.runner.Run(ctx, b.binary, path, "stdout", "-l", b.lang)
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("tesseract page %d: %w", page.Index, err)
	}
	text := Normalize(raw)

	confidence, ok := b.tsvConfidence(ctx, path)
	if !ok {
		confidence = EstimateConfidence(text)
	}
	if text == "" {
		confidence = 0
	}

	return domain.ExtractionResult{
		PageIndex:  page.Index,
		Text:       text,
		Confidence: confidence,
		Backend:    b.Name(),
	}, nil
}

func (b *TesseractBackend) writeTempPNG(page domain.PreprocessedImage) (string, error) {
	f, err := os.CreateTemp(b.tmpDir, fmt.Sprintf("ocr-page-%d-*.png", page.Index))
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	if err := png.Encode(f, page.Image); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("encode temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp image: %w", err)
	}
	return f.Name(), nil
}

// tsvConfidence reruns tesseract in TSV mode and averages the word-level
// confidence column. It reports ok=false when the TSV output is unusable.
func (b *TesseractBackend) tsvConfidence(ctx context.Context, path string) (float64, bool) {
	out, err := b.runner.Run(ctx, b.binary, path, "stdout", "-l", b.lang, "tsv")
	if err != nil {
		log.Printf("TesseractBackend.Extract: tsv confidence pass failed for %s: %v", filepath.Base(path), err)
		return 0, false
	}
	return parseTSVConfidence(out)
}

// parseTSVConfidence averages the conf column over word rows (level 5).
// Tesseract reports -1 for non-word rows; those are skipped.
func parseTSVConfidence(tsv string) (float64, bool) {
	var sum float64
	var words int
	for i, line := range strings.Split(tsv, "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		if cols[0] != "5" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		sum += conf
		words++
	}
	if words == 0 {
		return 0, false
	}
	return sum / float64(words) / 100, true
}
