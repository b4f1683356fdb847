// Package service implements the application use cases on top of the ports:
// upload ingestion, pipeline execution, record retrieval, and the queue
// worker that drains stuck runs.
package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docproc/internal/config"
	"docproc/internal/domain"
	"docproc/internal/pipeline"
	"docproc/internal/port"
)

// processTimeout bounds a single pipeline run started from an upload. Runs
// are detached from the request context so a client disconnect does not
// abandon half-processed work.
const processTimeout = 10 * time.Minute

// terminalSaveTimeout bounds the write that records a failed run. It uses a
// fresh context because the run's own context may already be dead.
const terminalSaveTimeout = 10 * time.Second

// DocumentService coordinates ingest validation, storage, the processing
// pipeline, and the record store.
type DocumentService struct {
	repo    port.ResultRepository
	storage port.ObjectStorage
	pipe    *pipeline.Pipeline

	bucket        string
	presignExpiry int64
	maxFileSize   int64
	allowedExts   map[string]domain.FileType
}

// NewDocumentService creates the document service. The upload allowlist is
// the intersection of the configured extensions and the types the pipeline
// can actually decode.
func NewDocumentService(
	repo port.ResultRepository,
	storage port.ObjectStorage,
	pipe *pipeline.Pipeline,
	s3cfg config.S3Config,
	upload config.UploadConfig,
) *DocumentService {
	allowed := make(map[string]domain.FileType)
	for _, ext := range upload.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ft, ok := domain.AllowedExtensions[ext]; ok {
			allowed[ext] = ft
		}
	}
	return &DocumentService{
		repo:          repo,
		storage:       storage,
		pipe:          pipe,
		bucket:        s3cfg.Bucket,
		presignExpiry: s3cfg.PresignExpiry,
		maxFileSize:   upload.MaxFileSizeMB * 1024 * 1024,
		allowedExts:   allowed,
	}
}

// Ingest validates an upload, persists it, and starts processing in the
// background. The returned record is in status queued (or is the existing
// record when the identical bytes were processed before).
func (s *DocumentService) Ingest(ctx context.Context, fileName string, data []byte) (*domain.ProcessingResult, error) {
	fileType, err := s.validate(fileName, data)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(data)
	contentHash := hex.EncodeToString(hash[:])

	// Identical bytes already processed: hand back the existing record
	// instead of duplicating work.
	if existing, err := s.repo.GetByContentHash(ctx, contentHash); err == nil {
		log.Printf("DocumentService.Ingest: duplicate upload %s matches record %s", fileName, existing.ID)
		if derr := existing.DecodeAnalysis(); derr != nil {
			return nil, fmt.Errorf("decode stored analysis: %w", derr)
		}
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("content hash lookup: %w", err)
	}

	res := &domain.ProcessingResult{
		ID:           uuid.New(),
		OriginalName: fileName,
		FileType:     fileType,
		ContentType:  domain.AllowedFileTypes[fileType],
		FileSize:     int64(len(data)),
		ContentHash:  contentHash,
		Status:       domain.StatusQueued,
		UploadedAt:   time.Now().UTC(),
	}
	res.FileName = fmt.Sprintf("%s.%s", res.ID, fileType)

	s.uploadOriginal(ctx, res, data)

	if err := s.repo.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	// Processing continues after the request returns; the run gets its own
	// context and deadline.
	go s.processDetached(res.ID, fileType, data)

	return res, nil
}

func (s *DocumentService) validate(fileName string, data []byte) (domain.FileType, error) {
	if len(data) == 0 {
		return "", domain.ErrEmptyUpload
	}
	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", domain.ErrFileTooLarge, len(data), s.maxFileSize)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	fileType, ok := s.allowedExts[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q", domain.ErrUnsupportedFileType, ext)
	}

	// The declared extension must agree with the magic bytes; a renamed
	// executable does not become a PDF.
	sniffed := http.DetectContentType(data)
	sniffed = strings.SplitN(sniffed, ";", 2)[0]
	sniffedType, known := domain.AllowedContentTypes[sniffed]
	if !known {
		return "", fmt.Errorf("%w: detected content type %q", domain.ErrUnsupportedFileType, sniffed)
	}
	if sniffedType != fileType {
		return "", fmt.Errorf("%w: extension %q but content is %q", domain.ErrCorruptUpload, ext, sniffed)
	}
	return fileType, nil
}

// uploadOriginal stores the raw bytes. Failure degrades to a warning on the
// record: the pipeline still runs from memory.
func (s *DocumentService) uploadOriginal(ctx context.Context, res *domain.ProcessingResult, data []byte) {
	out, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.bucket,
		Key:         "uploads/" + res.FileName,
		Body:        bytes.NewReader(data),
		ContentType: res.ContentType,
		Size:        res.FileSize,
	})
	if err != nil {
		log.Printf("DocumentService.Ingest: storage upload failed for %s: %v", res.FileName, err)
		res.Warnings = append(res.Warnings, domain.WarnStorageUploadFailed)
		return
	}
	res.S3Bucket = s.bucket
	res.S3Key = "uploads/" + res.FileName
	res.StorageURL = out.Location
}

func (s *DocumentService) processDetached(id uuid.UUID, fileType domain.FileType, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()
	if err := s.process(ctx, id, fileType, data); err != nil {
		log.Printf("DocumentService.processDetached: run %s failed: %v", id, err)
	}
}

// process runs the pipeline for a stored record and persists the outcome.
func (s *DocumentService) process(ctx context.Context, id uuid.UUID, fileType domain.FileType, data []byte) error {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load record %s: %w", id, err)
	}

	res.Status = domain.StatusProcessing
	res.Attempts++
	if err := s.repo.SaveResult(ctx, res); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	outcome, err := s.pipe.Run(ctx, fileType, data)
	if err != nil {
		res.Status = domain.StatusFailed
		res.FailedStage = failedStage(err)
		res.FailureReason = err.Error()
		now := time.Now().UTC()
		res.ProcessedAt = &now
		// The run context may be the reason the run died. Persist the
		// terminal status on a fresh context so the record never sticks
		// in processing.
		sctx, cancel := context.WithTimeout(context.Background(), terminalSaveTimeout)
		defer cancel()
		if serr := s.repo.SaveResult(sctx, res); serr != nil {
			log.Printf("DocumentService.process: save after run error failed for %s: %v", id, serr)
		}
		return fmt.Errorf("pipeline run: %w", err)
	}

	applyOutcome(res, outcome)
	if err := res.EncodeAnalysis(); err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	if err := s.repo.SaveResult(ctx, res); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	log.Printf("DocumentService.process: run %s finished with status %s (%d pages, %d warnings)",
		id, res.Status, res.PageCount, len(res.Warnings))
	return nil
}

// failedStage reports which stage a run-aborting error came from.
func failedStage(err error) domain.Stage {
	var se *pipeline.StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return domain.StageIngest
}

// applyOutcome copies a pipeline outcome onto the persisted record. Ingest
// warnings recorded before processing (storage upload failures) survive.
func applyOutcome(res *domain.ProcessingResult, out *pipeline.Outcome) {
	res.Status = out.Status
	res.FailedStage = out.FailedStage
	res.FailureReason = out.FailureReason
	res.DocumentText = out.Text
	res.PageCount = out.PageCount
	res.OCRBackend = out.OCRBackend
	res.OCRConfidence = out.OCRConfidence
	res.Analysis = out.Analysis
	res.HeuristicType = out.HeuristicType
	res.Warnings = append(res.Warnings, out.Warnings...)
	now := time.Now().UTC()
	res.ProcessedAt = &now
}

// ProcessQueued reruns a stored record whose processing never finished. The
// original bytes come back from object storage.
func (s *DocumentService) ProcessQueued(ctx context.Context, res *domain.ProcessingResult) error {
	if res.S3Key == "" {
		res.Status = domain.StatusFailed
		res.FailedStage = domain.StageIngest
		res.FailureReason = "original bytes unavailable for requeue"
		now := time.Now().UTC()
		res.ProcessedAt = &now
		return s.repo.SaveResult(ctx, res)
	}
	data, err := s.storage.Download(ctx, res.S3Bucket, res.S3Key)
	if err != nil {
		return fmt.Errorf("download original %s: %w", res.S3Key, err)
	}
	return s.process(ctx, res.ID, res.FileType, data)
}

// Get returns one record with its analysis decoded and a presigned link to
// the original when it is in storage.
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*domain.ProcessingResult, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := res.DecodeAnalysis(); err != nil {
		return nil, fmt.Errorf("decode stored analysis: %w", err)
	}
	if res.S3Key != "" {
		url, err := s.storage.GetPresignedURL(ctx, res.S3Bucket, res.S3Key, s.presignExpiry)
		if err != nil {
			log.Printf("DocumentService.Get: presign failed for %s: %v", res.S3Key, err)
		} else {
			res.StorageURL = url
		}
	}
	return res, nil
}

// List returns a page of records, newest first.
func (s *DocumentService) List(ctx context.Context, offset, limit int) ([]domain.ProcessingResult, int, error) {
	results, total, err := s.repo.List(ctx, offset, normalizeLimit(limit))
	if err != nil {
		return nil, 0, err
	}
	for i := range results {
		if err := results[i].DecodeAnalysis(); err != nil {
			return nil, 0, fmt.Errorf("decode stored analysis: %w", err)
		}
	}
	return results, total, nil
}

// Search returns records matching the filter.
func (s *DocumentService) Search(ctx context.Context, filter domain.SearchFilter) ([]domain.ProcessingResult, int, error) {
	filter.Limit = normalizeLimit(filter.Limit)
	results, total, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range results {
		if err := results[i].DecodeAnalysis(); err != nil {
			return nil, 0, fmt.Errorf("decode stored analysis: %w", err)
		}
	}
	return results, total, nil
}

// Stats summarizes the record store.
func (s *DocumentService) Stats(ctx context.Context) (*domain.Stats, error) {
	return s.repo.Stats(ctx)
}

// Delete removes a record and its stored original.
func (s *DocumentService) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if res.S3Key != "" {
		if err := s.storage.Delete(ctx, res.S3Bucket, res.S3Key); err != nil {
			log.Printf("DocumentService.Delete: storage delete failed for %s: %v", res.S3Key, err)
		}
	}
	return s.repo.Delete(ctx, id)
}

func normalizeLimit(limit int) int {
	const defaultLimit, maxLimit = 20, 1000
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
