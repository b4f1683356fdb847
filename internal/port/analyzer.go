package port

import (
	"context"

	"docproc/internal/domain"
)

// TextAnalyzer derives structured metadata from extracted document text via
// an external language model. Warnings report recoverable degradations
// (lenient parse fallback, coerced classification); errors are always
// *analyzer.AnalysisError values carrying a retryability kind.
type TextAnalyzer interface {
	Analyze(ctx context.Context, text string) (*domain.AnalysisResult, []string, error)
}
