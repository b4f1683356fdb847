package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docproc/internal/analyzer"
	"docproc/internal/domain"
	"docproc/internal/preprocess"
)

type fakeRaster struct {
	pages []domain.PageImage
	err   error
	calls int
}

func (f *fakeRaster) Pages(_ context.Context, _ []byte, _ domain.FileType) ([]domain.PageImage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

// fakeBackend returns canned text per page index and can be told to fail a
// page a fixed number of times before succeeding.
type fakeBackend struct {
	mu       sync.Mutex
	texts    map[int]string
	conf     map[int]float64
	failures map[int]int
	calls    int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Extract(_ context.Context, page domain.PreprocessedImage) (domain.ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if remaining := f.failures[page.Index]; remaining > 0 {
		f.failures[page.Index] = remaining - 1
		return domain.ExtractionResult{}, fmt.Errorf("ocr broke on page %d", page.Index)
	}
	conf := f.conf[page.Index]
	return domain.ExtractionResult{
		PageIndex:  page.Index,
		Text:       f.texts[page.Index],
		Confidence: conf,
		Backend:    "fake",
	}, nil
}

// fakeAnalyzer replays a sequence of errors, then succeeds.
type fakeAnalyzer struct {
	mu       sync.Mutex
	errs     []error
	result   *domain.AnalysisResult
	warnings []string
	calls    int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string) (*domain.AnalysisResult, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, nil, err
	}
	return f.result, f.warnings, nil
}

func testPages(n int) []domain.PageImage {
	pages := make([]domain.PageImage, n)
	for i := range pages {
		pages[i] = domain.PageImage{Index: i, Image: image.NewGray(image.Rect(0, 0, 8, 8)), Source: domain.FileTypePDF}
	}
	return pages
}

func newTestPipeline(raster *fakeRaster, backend *fakeBackend, az *fakeAnalyzer) *Pipeline {
	return New(raster, preprocess.New(preprocess.Options{}), backend, az, Options{
		PageWorkers:    2,
		PageRetries:    1,
		MaxAIAttempts:  3,
		RetryBaseDelay: time.Millisecond,
	})
}

func TestRunCompleted(t *testing.T) {
	raster := &fakeRaster{pages: testPages(3)}
	backend := &fakeBackend{
		texts: map[int]string{0: "page zero", 1: "page one", 2: "page two"},
		conf:  map[int]float64{0: 0.9, 1: 0.8, 2: 0.7},
	}
	az := &fakeAnalyzer{result: &domain.AnalysisResult{DocumentType: domain.DocTypeLetter, Confidence: 0.85}}
	p := newTestPipeline(raster, backend, az)

	out, err := p.Run(context.Background(), domain.FileTypePDF, []byte("pdf"))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, out.Status)
	assert.Equal(t, "page zero\fpage one\fpage two", out.Text)
	assert.Equal(t, 3, out.PageCount)
	assert.InDelta(t, 0.8, out.OCRConfidence, 0.001)
	assert.Equal(t, "fake", out.OCRBackend)
	assert.Equal(t, domain.DocTypeLetter, out.Analysis.DocumentType)
	assert.Empty(t, out.Warnings)
	assert.Equal(t, 1, az.calls)
}

func TestRunPartialPageFailure(t *testing.T) {
	raster := &fakeRaster{pages: testPages(3)}
	backend := &fakeBackend{
		texts:    map[int]string{0: "alpha", 1: "unreached", 2: "gamma"},
		conf:     map[int]float64{0: 0.9, 2: 0.9},
		failures: map[int]int{1: 2}, // fails the initial attempt and the retry
	}
	az := &fakeAnalyzer{result: &domain.AnalysisResult{DocumentType: domain.DocTypeOther}}
	p := newTestPipeline(raster, backend, az)

	out, err := p.Run(context.Background(), domain.FileTypePDF, []byte("pdf"))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, out.Status)
	assert.Equal(t, "alpha\f\fgamma", out.Text, "failed page keeps its slot as empty text")
	assert.Contains(t, out.Warnings, domain.WarnPageExtractionFailed)
	assert.InDelta(t, 0.6, out.OCRConfidence, 0.001)
}

func TestRunPageRetrySucceeds(t *testing.T) {
	raster := &fakeRaster{pages: testPages(1)}
	backend := &fakeBackend{
		texts:    map[int]string{0: "recovered text"},
		conf:     map[int]float64{0: 0.9},
		failures: map[int]int{0: 1}, // first attempt fails, retry succeeds
	}
	az := &fakeAnalyzer{result: &domain.AnalysisResult{DocumentType: domain.DocTypeOther}}
	p := newTestPipeline(raster, backend, az)

	out, err := p.Run(context.Background(), domain.FileTypePDF, []byte("pdf"))

	require.NoError(t, err)
	assert.Equal(t, "recovered text", out.Text)
	assert.NotContains(t, out.Warnings, domain.WarnPageExtractionFailed)
	assert.Equal(t, 2, backend.calls)
}

func TestRunAnalysisExhaustedGoesOCROnly(t *testing.T) {
	raster := &fakeRaster{pages: testPages(1)}
	backend := &fakeBackend{
		texts: map[int]string{0: "INVOICE\nInvoice Number 42\nAmount Due: $10"},
		conf:  map[int]float64{0: 0.9},
	}
	netErr := &analyzer.AnalysisError{Kind: analyzer.ErrKindNetwork, Err: errors.New("connection refused")}
	az := &fakeAnalyzer{errs: []error{netErr, netErr, netErr}}
	p := newTestPipeline(raster, backend, az)

	out, err := p.Run(context.Background(), domain.FileTypePDF, []byte("pdf"))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusOCROnly, out.Status)
	assert.Nil(t, out.Analysis)
	assert.Contains(t, out.Warnings, domain.WarnAnalysisUnavailable)
	assert.Equal(t, domain.DocTypeInvoice, out.HeuristicType)
	assert.Equal(t, 3, az.calls)
	assert.NotEmpty(t, out.Text, "extracted text survives analysis failure")
}

func TestRunAnalysisNonRetryableStopsImmediately(t *testing.T) {
	raster := &fakeRaster{pages: testPages(1)}
	backend := &fakeBackend{texts: map[int]string{0: "some text"}, conf: map[int]float64{0: 0.9}}
	az := &fakeAnalyzer{errs: []error{
		&analyzer.AnalysisError{Kind: analyzer.ErrKindInvalidResponse, Err: errors.New("garbage reply")},
	}}
	p := newTestPipeline(raster, backend, az)

	out, err := p.Run(context.Background(), domain.FileTypePDF, []byte("pdf"))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusOCROnly, out.Status)
	assert.Equal(t, 1, az.calls, "invalid_response must not be retried")
}

func TestRunRateLimitedRetriesThenSucceeds(t *testing.T) {
	raster := &fakeRaster{pages: testPages(1)}
	backend := &fakeBackend{texts: map[int]string{0: "some text"}, conf: map[int]float64{0: 0.9}}
	az := &fakeAnalyzer{
		errs: []error{&analyzer.AnalysisError{
			Kind:       analyzer.ErrKindRateLimited,
			Err:        errors.New("slow down"),
			RetryAfter: time.Millisecond,
		}},
		result: &domain.AnalysisResult{DocumentType: domain.DocTypeReceipt},
	}
	p := newTestPipeline(raster, backend, az)

	out, err := p.Run(context.Background(), domain.FileTypePDF, []byte("pdf"))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, out.Status)
	assert.Equal(t, 2, az.calls)
}

func TestRunNoTextSkipsAnalysis(t *testing.T) {
	raster := &fakeRaster{pages: testPages(2)}
	backend := &fakeBackend{texts: map[int]string{}} // every page comes back empty
	az := &fakeAnalyzer{result: &domain.AnalysisResult{}}
	p := newTestPipeline(raster, backend, az)

	out, err := p.Run(context.Background(), domain.FileTypePDF, []byte("pdf"))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusOCROnly, out.Status)
	assert.Contains(t, out.Warnings, domain.WarnNoTextExtracted)
	assert.Contains(t, out.Warnings, domain.WarnOCRLowConfidence)
	assert.Equal(t, domain.DocTypeOther, out.HeuristicType)
	assert.Empty(t, out.Text)
	assert.Zero(t, az.calls, "empty document must never reach the analyzer")
}

func TestRunCorruptUploadFailsAtIngest(t *testing.T) {
	raster := &fakeRaster{err: fmt.Errorf("%w: bad bytes", domain.ErrCorruptUpload)}
	backend := &fakeBackend{}
	az := &fakeAnalyzer{}
	p := newTestPipeline(raster, backend, az)

	out, err := p.Run(context.Background(), domain.FileTypePDF, []byte("junk"))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, out.Status)
	assert.Equal(t, domain.StageIngest, out.FailedStage)
	assert.Equal(t, domain.ReasonCorruptFile, out.FailureReason)
	assert.Zero(t, backend.calls)
	assert.Zero(t, az.calls)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	raster := &fakeRaster{pages: testPages(1)}
	p := newTestPipeline(raster, &fakeBackend{}, &fakeAnalyzer{})

	_, err := p.Run(ctx, domain.FileTypePDF, []byte("pdf"))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.StageExtract, se.Stage)
}

func TestRunIdempotent(t *testing.T) {
	newDeps := func() (*fakeRaster, *fakeBackend, *fakeAnalyzer) {
		return &fakeRaster{pages: testPages(2)},
			&fakeBackend{texts: map[int]string{0: "one", 1: "two"}, conf: map[int]float64{0: 0.9, 1: 0.9}},
			&fakeAnalyzer{result: &domain.AnalysisResult{DocumentType: domain.DocTypeForm, Confidence: 0.7}}
	}

	r1, b1, a1 := newDeps()
	out1, err := newTestPipeline(r1, b1, a1).Run(context.Background(), domain.FileTypePDF, []byte("pdf"))
	require.NoError(t, err)

	r2, b2, a2 := newDeps()
	out2, err := newTestPipeline(r2, b2, a2).Run(context.Background(), domain.FileTypePDF, []byte("pdf"))
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
}

func TestAssemble(t *testing.T) {
	pages := testPages(3)
	results := []domain.ExtractionResult{
		{PageIndex: 2, Text: "  third  "},
		{PageIndex: 0, Text: "first"},
		{PageIndex: 1, Text: "second\n"},
	}

	text, err := Assemble(pages, results)

	require.NoError(t, err)
	assert.Equal(t, "first\fsecond\fthird", text)
}

func TestAssembleLengthMismatch(t *testing.T) {
	_, err := Assemble(testPages(2), []domain.ExtractionResult{{PageIndex: 0}})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrContractViolation)
}

func TestAssembleUnknownIndex(t *testing.T) {
	_, err := Assemble(testPages(1), []domain.ExtractionResult{{PageIndex: 7}})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrContractViolation)
}

func TestAssembleDuplicateIndex(t *testing.T) {
	_, err := Assemble(testPages(2), []domain.ExtractionResult{{PageIndex: 0}, {PageIndex: 0}})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrContractViolation)
}
