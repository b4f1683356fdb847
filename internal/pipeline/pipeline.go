// Package pipeline runs the document processing sequence: rasterize,
// preprocess, extract, normalize, analyze. A run degrades page by page and
// stage by stage instead of failing wholesale; the returned error is reserved
// for internal contract violations and context cancellation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docproc/internal/analyzer"
	"docproc/internal/domain"
	"docproc/internal/ocr"
	"docproc/internal/port"
	"docproc/internal/preprocess"
)

// Options tunes a Pipeline. Zero values fall back to safe defaults.
type Options struct {
	PageWorkers    int
	PageRetries    int
	MaxAIAttempts  int
	RetryBaseDelay time.Duration
}

// Outcome is the in-memory result of one pipeline run, before persistence
// concerns are attached.
type Outcome struct {
	Status        domain.RunStatus
	FailedStage   domain.Stage
	FailureReason string
	Text          string
	PageCount     int
	OCRBackend    string
	OCRConfidence float64
	Analysis      *domain.AnalysisResult
	HeuristicType domain.DocumentType
	Warnings      []string
}

// Pipeline orchestrates the processing stages. It holds no per-run state and
// is safe for concurrent runs; the analyzer's rate limiter is shared across
// all of them.
type Pipeline struct {
	raster   port.Rasterizer
	pre      *preprocess.Preprocessor
	backend  port.OCRBackend
	analyzer port.TextAnalyzer
	opts     Options
}

// New assembles a Pipeline from its stage implementations.
func New(raster port.Rasterizer, pre *preprocess.Preprocessor, backend port.OCRBackend, az port.TextAnalyzer, opts Options) *Pipeline {
	if opts.PageWorkers <= 0 {
		opts.PageWorkers = 4
	}
	if opts.PageRetries < 0 {
		opts.PageRetries = 0
	}
	if opts.MaxAIAttempts <= 0 {
		opts.MaxAIAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	return &Pipeline{raster: raster, pre: pre, backend: backend, analyzer: az, opts: opts}
}

// StageError wraps a run-aborting error with the stage it happened in, so
// callers can persist an accurate failed_stage when no Outcome exists.
type StageError struct {
	Stage domain.Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage domain.Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Run processes one validated upload through every stage. A nil error does
// not mean success: the Outcome's Status reports completed, ocr_only, or
// failed. A non-nil error means the run could not produce an Outcome at all
// (cancellation or an internal contract violation) and carries the stage it
// died in as a StageError.
func (p *Pipeline) Run(ctx context.Context, fileType domain.FileType, data []byte) (*Outcome, error) {
	out := &Outcome{OCRBackend: p.backend.Name()}

	pages, err := p.raster.Pages(ctx, data, fileType)
	if err != nil {
		if ctx.Err() != nil {
			return nil, stageErr(domain.StageIngest, ctx.Err())
		}
		log.Printf("Pipeline.Run: rasterization failed: %v", err)
		out.Status = domain.StatusFailed
		out.FailedStage = domain.StageIngest
		out.FailureReason = ingestReason(err)
		return out, nil
	}
	out.PageCount = len(pages)

	results, pageWarnings, err := p.extractPages(ctx, pages)
	if err != nil {
		return nil, stageErr(domain.StageExtract, err)
	}
	out.Warnings = append(out.Warnings, pageWarnings...)

	if err := ctx.Err(); err != nil {
		return nil, stageErr(domain.StageExtract, err)
	}

	text, err := Assemble(pages, results)
	if err != nil {
		return nil, stageErr(domain.StageNormalize, err)
	}
	out.Text = text
	out.OCRConfidence = meanConfidence(results)
	if out.OCRConfidence < ocr.LowConfidenceThreshold {
		out.Warnings = append(out.Warnings, domain.WarnOCRLowConfidence)
	}

	if strings.TrimSpace(text) == "" {
		out.Text = ""
		out.Warnings = append(out.Warnings, domain.WarnNoTextExtracted)
		out.Status = domain.StatusOCROnly
		out.HeuristicType = domain.DocTypeOther
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, stageErr(domain.StageAnalyze, err)
	}

	analysis, aiWarnings, err := p.analyzeWithRetry(ctx, text)
	out.Warnings = append(out.Warnings, aiWarnings...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, stageErr(domain.StageAnalyze, ctx.Err())
		}
		log.Printf("Pipeline.Run: analysis unavailable after %d attempts: %v", p.opts.MaxAIAttempts, err)
		out.Warnings = append(out.Warnings, domain.WarnAnalysisUnavailable)
		out.Status = domain.StatusOCROnly
		out.HeuristicType = analyzer.ClassifyKeyword(text)
		return out, nil
	}

	out.Analysis = analysis
	out.Status = domain.StatusCompleted
	return out, nil
}

// extractPages preprocesses and OCRs every page, bounded by PageWorkers.
// Page failures degrade: a preprocess failure falls back to the raw page, an
// extraction failure (after retry) yields an empty result with confidence 0.
func (p *Pipeline) extractPages(ctx context.Context, pages []domain.PageImage) ([]domain.ExtractionResult, []string, error) {
	results := make([]domain.ExtractionResult, len(pages))

	var mu sync.Mutex
	var warnings []string
	warn := func(code string) {
		mu.Lock()
		warnings = append(warnings, code)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.PageWorkers)

	for i, page := range pages {
		g.Go(func() error {
			prepped, err := p.pre.Apply(page)
			if err != nil {
				log.Printf("Pipeline.extractPages: preprocess page %d failed, using original: %v", page.Index, err)
				warn(domain.WarnPreprocessFailed)
				prepped = domain.PreprocessedImage{Index: page.Index, Image: page.Image}
			}

			result, err := p.extractWithRetry(gctx, prepped)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Printf("Pipeline.extractPages: page %d extraction failed: %v", page.Index, err)
				warn(domain.WarnPageExtractionFailed)
				result = domain.ExtractionResult{
					PageIndex: page.Index,
					Backend:   p.backend.Name(),
				}
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return results, warnings, nil
}

func (p *Pipeline) extractWithRetry(ctx context.Context, page domain.PreprocessedImage) (domain.ExtractionResult, error) {
	var lastErr error
	for attempt := 0; attempt <= p.opts.PageRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.ExtractionResult{}, err
		}
		result, err := p.backend.Extract(ctx, page)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return domain.ExtractionResult{}, lastErr
}

// analyzeWithRetry drives the AI stage with exponential backoff. Rate-limit
// responses that advertise a Retry-After override the computed delay;
// non-retryable failures stop immediately.
func (p *Pipeline) analyzeWithRetry(ctx context.Context, text string) (*domain.AnalysisResult, []string, error) {
	var lastErr error
	delay := p.opts.RetryBaseDelay

	for attempt := 1; attempt <= p.opts.MaxAIAttempts; attempt++ {
		result, warnings, err := p.analyzer.Analyze(ctx, text)
		if err == nil {
			return result, warnings, nil
		}
		lastErr = err

		var aerr *analyzer.AnalysisError
		if !errors.As(err, &aerr) {
			return nil, nil, fmt.Errorf("%w: analyzer returned untyped error: %v", domain.ErrContractViolation, err)
		}
		if !aerr.Retryable() || attempt == p.opts.MaxAIAttempts {
			break
		}

		wait := delay
		if aerr.Kind == analyzer.ErrKindRateLimited && aerr.RetryAfter > wait {
			wait = aerr.RetryAfter
		}
		log.Printf("Pipeline.analyzeWithRetry: attempt %d/%d failed (%s), retrying in %s",
			attempt, p.opts.MaxAIAttempts, aerr.Kind, wait)

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
	return nil, nil, lastErr
}

func meanConfidence(results []domain.ExtractionResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}
	return sum / float64(len(results))
}

func ingestReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return domain.ReasonUnsupportedType
	case errors.Is(err, domain.ErrCorruptUpload):
		return domain.ReasonCorruptFile
	default:
		return err.Error()
	}
}
