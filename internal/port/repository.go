package port

import (
	"context"

	"github.com/google/uuid"

	"docproc/internal/domain"
)

// ResultRepository defines the record-store contract for processing results.
//
// Document identity is the SHA-256 content hash of the raw upload bytes:
// SaveResult on a record whose hash already exists updates that record, so
// re-processing an identical upload never creates a silent duplicate.
type ResultRepository interface {
	Create(ctx context.Context, res *domain.ProcessingResult) error
	SaveResult(ctx context.Context, res *domain.ProcessingResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingResult, error)
	GetByContentHash(ctx context.Context, hash string) (*domain.ProcessingResult, error)
	List(ctx context.Context, offset, limit int) ([]domain.ProcessingResult, int, error)
	Search(ctx context.Context, filter domain.SearchFilter) ([]domain.ProcessingResult, int, error)
	Stats(ctx context.Context) (*domain.Stats, error)
	ClaimQueued(ctx context.Context, limit int) ([]domain.ProcessingResult, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
