package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"docproc/internal/domain"
	"docproc/internal/port"
)

type resultRepo struct {
	db *sqlx.DB
}

// NewResultRepo creates a new PostgreSQL-backed ResultRepository.
func NewResultRepo(db *sqlx.DB) port.ResultRepository {
	return &resultRepo{db: db}
}

func (r *resultRepo) Create(ctx context.Context, res *domain.ProcessingResult) error {
	if res.UploadedAt.IsZero() {
		res.UploadedAt = time.Now().UTC()
	}

	query := `INSERT INTO documents (
		id, file_name, original_name, file_type, content_type, file_size,
		content_hash, s3_bucket, s3_key, storage_url,
		status, failed_stage, failure_reason,
		document_text, page_count, ocr_backend, ocr_confidence,
		analysis, heuristic_type, warnings, attempts, retry_after,
		uploaded_at, processed_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10,
		$11, $12, $13,
		$14, $15, $16, $17,
		$18, $19, $20, $21, $22,
		$23, $24
	)`

	_, err := r.db.ExecContext(ctx, query,
		res.ID, res.FileName, res.OriginalName, res.FileType, res.ContentType, res.FileSize,
		res.ContentHash, res.S3Bucket, res.S3Key, res.StorageURL,
		res.Status, res.FailedStage, res.FailureReason,
		res.DocumentText, res.PageCount, res.OCRBackend, res.OCRConfidence,
		res.AnalysisJSON, res.HeuristicType, res.Warnings, res.Attempts, res.RetryAfter,
		res.UploadedAt, res.ProcessedAt)
	if err != nil {
		return fmt.Errorf("resultRepo.Create: %w", err)
	}
	return nil
}

func (r *resultRepo) SaveResult(ctx context.Context, res *domain.ProcessingResult) error {
	query := `UPDATE documents SET
		status = $2, failed_stage = $3, failure_reason = $4,
		document_text = $5, page_count = $6, ocr_backend = $7, ocr_confidence = $8,
		analysis = $9, heuristic_type = $10, warnings = $11,
		attempts = $12, retry_after = $13, processed_at = $14
	WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		res.ID,
		res.Status, res.FailedStage, res.FailureReason,
		res.DocumentText, res.PageCount, res.OCRBackend, res.OCRConfidence,
		res.AnalysisJSON, res.HeuristicType, res.Warnings,
		res.Attempts, res.RetryAfter, res.ProcessedAt)
	if err != nil {
		return fmt.Errorf("resultRepo.SaveResult: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resultRepo.SaveResult rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *resultRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingResult, error) {
	var res domain.ProcessingResult
	err := r.db.GetContext(ctx, &res, "SELECT * FROM documents WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("resultRepo.GetByID: %w", err)
	}
	return &res, nil
}

func (r *resultRepo) GetByContentHash(ctx context.Context, hash string) (*domain.ProcessingResult, error) {
	var res domain.ProcessingResult
	err := r.db.GetContext(ctx, &res, "SELECT * FROM documents WHERE content_hash = $1", hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("resultRepo.GetByContentHash: %w", err)
	}
	return &res, nil
}

func (r *resultRepo) List(ctx context.Context, offset, limit int) ([]domain.ProcessingResult, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM documents"); err != nil {
		return nil, 0, fmt.Errorf("resultRepo.List count: %w", err)
	}

	var results []domain.ProcessingResult
	err := r.db.SelectContext(ctx, &results,
		"SELECT * FROM documents ORDER BY uploaded_at DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("resultRepo.List: %w", err)
	}
	return results, total, nil
}

func (r *resultRepo) Search(ctx context.Context, filter domain.SearchFilter) ([]domain.ProcessingResult, int, error) {
	where, args := buildSearchWhere(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM documents"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("resultRepo.Search count: %w", err)
	}

	query := fmt.Sprintf("SELECT * FROM documents%s ORDER BY uploaded_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	var results []domain.ProcessingResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, 0, fmt.Errorf("resultRepo.Search: %w", err)
	}
	return results, total, nil
}

// buildSearchWhere assembles the WHERE clause with positional parameters.
// The document type filter matches either the AI classification inside the
// analysis JSON or the heuristic fallback classification.
func buildSearchWhere(filter domain.SearchFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	next := func() string { return "$" + strconv.Itoa(len(args)+1) }

	if q := strings.TrimSpace(filter.Query); q != "" {
		clauses = append(clauses, fmt.Sprintf(
			"(document_text ILIKE %s OR original_name ILIKE %s)", next(), next()))
		args = append(args, "%"+q+"%", "%"+q+"%")
	}
	if filter.DocumentType != "" {
		clauses = append(clauses, fmt.Sprintf(
			"(analysis->>'document_type' = %s OR heuristic_type = %s)", next(), next()))
		args = append(args, filter.DocumentType, filter.DocumentType)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+next())
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		clauses = append(clauses, "uploaded_at >= "+next())
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		clauses = append(clauses, "uploaded_at <= "+next())
		args = append(args, *filter.DateTo)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *resultRepo) Stats(ctx context.Context) (*domain.Stats, error) {
	stats := &domain.Stats{
		ByDocumentType: make(map[string]int),
		ByStatus:       make(map[string]int),
	}

	if err := r.db.GetContext(ctx, &stats.TotalDocuments, "SELECT COUNT(*) FROM documents"); err != nil {
		return nil, fmt.Errorf("resultRepo.Stats total: %w", err)
	}

	type bucket struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}

	var byType []bucket
	err := r.db.SelectContext(ctx, &byType,
		`SELECT COALESCE(NULLIF(analysis->>'document_type', ''), NULLIF(heuristic_type, ''), 'unclassified') AS key,
		        COUNT(*) AS count
		 FROM documents GROUP BY 1`)
	if err != nil {
		return nil, fmt.Errorf("resultRepo.Stats by type: %w", err)
	}
	for _, b := range byType {
		stats.ByDocumentType[b.Key] = b.Count
	}

	var byStatus []bucket
	err = r.db.SelectContext(ctx, &byStatus,
		"SELECT status AS key, COUNT(*) AS count FROM documents GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("resultRepo.Stats by status: %w", err)
	}
	for _, b := range byStatus {
		stats.ByStatus[b.Key] = b.Count
	}

	err = r.db.GetContext(ctx, &stats.RecentUploads,
		"SELECT COUNT(*) FROM documents WHERE uploaded_at > NOW() - INTERVAL '7 days'")
	if err != nil {
		return nil, fmt.Errorf("resultRepo.Stats recent: %w", err)
	}
	return stats, nil
}

// ClaimQueued atomically flips up to limit queued records to processing and
// returns them. SKIP LOCKED keeps concurrent workers from claiming the same
// rows.
func (r *resultRepo) ClaimQueued(ctx context.Context, limit int) ([]domain.ProcessingResult, error) {
	query := `UPDATE documents SET status = 'processing'
		WHERE id IN (
			SELECT id FROM documents
			WHERE status = 'queued' AND (retry_after IS NULL OR retry_after <= NOW())
			ORDER BY uploaded_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`

	var results []domain.ProcessingResult
	if err := r.db.SelectContext(ctx, &results, query, limit); err != nil {
		return nil, fmt.Errorf("resultRepo.ClaimQueued: %w", err)
	}
	return results, nil
}

func (r *resultRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("resultRepo.Delete: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resultRepo.Delete rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
