package ocr

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docproc/internal/domain"
)

// stubRunner replays canned outputs keyed by the trailing argument so the
// text pass and the tsv pass can answer differently.
type stubRunner struct {
	textOut string
	textErr error
	tsvOut  string
	tsvErr  error
	calls   [][]string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	if len(args) > 0 && args[len(args)-1] == "tsv" {
		return s.tsvOut, s.tsvErr
	}
	return s.textOut, s.textErr
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t5\t5\t40\t12\t90\tInvoice\n" +
	"5\t1\t1\t1\t1\t2\t50\t5\t40\t12\t70\tTotal\n"

func testPage() domain.PreprocessedImage {
	return domain.PreprocessedImage{Index: 0, Image: image.NewGray(image.Rect(0, 0, 4, 4))}
}

func TestTesseractExtract(t *testing.T) {
	runner := &stubRunner{textOut: "Invoice Total\n\n", tsvOut: sampleTSV}
	backend := NewTesseractBackend(runner, "tesseract", "eng", time.Minute)

	result, err := backend.Extract(context.Background(), testPage())

	require.NoError(t, err)
	assert.Equal(t, "Invoice Total", result.Text)
	assert.Equal(t, domain.BackendTesseract, result.Backend)
	assert.InDelta(t, 0.80, result.Confidence, 0.001)

	require.Len(t, runner.calls, 2)
	textCall := runner.calls[0]
	assert.Equal(t, "tesseract", textCall[0])
	assert.Equal(t, "stdout", textCall[2])
	assert.Equal(t, []string{"-l", "eng"}, textCall[3:5])
	assert.Equal(t, "tsv", runner.calls[1][len(runner.calls[1])-1])
}

func TestTesseractExtractCommandFailure(t *testing.T) {
	runner := &stubRunner{textErr: errors.New("exit status 1: Error opening data file")}
	backend := NewTesseractBackend(runner, "tesseract", "eng", time.Minute)

	_, err := backend.Extract(context.Background(), testPage())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract page 0")
}

func TestTesseractExtractTSVFailureFallsBack(t *testing.T) {
	runner := &stubRunner{
		textOut: "A perfectly readable stretch of invoice text for scoring.",
		tsvErr:  errors.New("exit status 1"),
	}
	backend := NewTesseractBackend(runner, "tesseract", "eng", time.Minute)

	result, err := backend.Extract(context.Background(), testPage())

	require.NoError(t, err)
	assert.Greater(t, result.Confidence, LowConfidenceThreshold)
}

func TestTesseractExtractEmptyText(t *testing.T) {
	runner := &stubRunner{textOut: "  \n\n  ", tsvOut: sampleTSV}
	backend := NewTesseractBackend(runner, "tesseract", "eng", time.Minute)

	result, err := backend.Extract(context.Background(), testPage())

	require.NoError(t, err)
	assert.Empty(t, result.Text)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Less(t, result.Confidence, LowConfidenceThreshold)
}

func TestTesseractExtractNilImage(t *testing.T) {
	backend := NewTesseractBackend(&stubRunner{}, "", "", 0)

	_, err := backend.Extract(context.Background(), domain.PreprocessedImage{Index: 2})

	require.Error(t, err)
}

func TestParseTSVConfidence(t *testing.T) {
	conf, ok := parseTSVConfidence(sampleTSV)

	require.True(t, ok)
	assert.InDelta(t, 0.80, conf, 0.001)
}

func TestParseTSVConfidenceNoWords(t *testing.T) {
	header := strings.SplitN(sampleTSV, "\n", 2)[0]

	_, ok := parseTSVConfidence(header + "\n")

	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	raw := "Line one  \r\n\r\n\r\n  indented line\r\n\t\n"

	got := Normalize(raw)

	assert.Equal(t, "Line one\n\n  indented line", got)
}

func TestEstimateConfidence(t *testing.T) {
	assert.Equal(t, 0.0, EstimateConfidence("   "))

	garbage := EstimateConfidence("@#$%^&*((]]{{||\\~~``")
	prose := EstimateConfidence(strings.Repeat("Invoice number 42 due on receipt. ", 8))
	assert.Less(t, garbage, LowConfidenceThreshold)
	assert.Greater(t, prose, 0.8)
	assert.LessOrEqual(t, prose, 1.0)

	// A stray character or two is not readable prose, however clean.
	assert.Less(t, EstimateConfidence("a"), LowConfidenceThreshold)
	assert.Less(t, EstimateConfidence("ab"), LowConfidenceThreshold)
}
