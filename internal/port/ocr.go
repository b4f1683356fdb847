package port

import (
	"context"

	"docproc/internal/domain"
)

// OCRBackend is an interchangeable text extraction engine. Both backends
// expose the identical input/output shape; backend-specific failures
// (timeouts, unreachable services, malformed responses) are normalized to an
// error return so the orchestrator never special-cases backend identity.
//
// "Ran but found nothing" is not an error: it is a success with empty text
// and a conservative low confidence.
type OCRBackend interface {
	Name() string
	Extract(ctx context.Context, page domain.PreprocessedImage) (domain.ExtractionResult, error)
}
