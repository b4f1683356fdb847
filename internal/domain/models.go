package domain

import (
	"encoding/json"
	"image"
	"time"

	"github.com/google/uuid"
)

// PageImage is a single raster page derived from an upload: one-to-one for
// image uploads, one-to-many for PDFs, in page order. Pages are owned by the
// pipeline run that created them and are discarded after extraction.
type PageImage struct {
	Index  int
	Image  image.Image
	Source FileType
}

// PreprocessedImage is a transformed PageImage ready for OCR. It carries the
// same page index as its source; preprocessing always produces a new image,
// never mutating the source in place.
type PreprocessedImage struct {
	Index int
	Image image.Image
}

// ExtractionResult is the per-page OCR output. Confidence is always present,
// even on partial extraction: backends that report no native confidence get a
// conservative estimate, never a null.
type ExtractionResult struct {
	PageIndex  int     `json:"page_index"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Backend    string  `json:"backend"`
}

// AnalysisResult is the structured AI output for one document.
type AnalysisResult struct {
	DocumentType DocumentType      `json:"document_type"`
	Fields       map[string]string `json:"fields"`
	Summary      string            `json:"summary"`
	Confidence   float64           `json:"confidence"`
	Language     string            `json:"language"`
	WordCount    int               `json:"word_count"`
}

// ProcessingResult is the terminal artifact of one pipeline run and the only
// entity handed to external collaborators. It is immutable once finalized.
//
// Analysis is nil when the AI stage failed terminally; Status records that as
// ocr_only rather than failing the whole document. HeuristicType is a
// keyword-based best-effort classification attached to ocr_only results; it
// is never attributed to the AI.
type ProcessingResult struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	FileName      string        `db:"file_name" json:"file_name"`
	OriginalName  string        `db:"original_name" json:"original_name"`
	FileType      FileType      `db:"file_type" json:"file_type"`
	ContentType   string        `db:"content_type" json:"content_type"`
	FileSize      int64         `db:"file_size" json:"file_size"`
	ContentHash   string        `db:"content_hash" json:"content_hash"`
	S3Bucket      string        `db:"s3_bucket" json:"-"`
	S3Key         string        `db:"s3_key" json:"-"`
	StorageURL    string        `db:"storage_url" json:"storage_url,omitempty"`
	Status        RunStatus     `db:"status" json:"status"`
	FailedStage   Stage         `db:"failed_stage" json:"failed_stage,omitempty"`
	FailureReason string        `db:"failure_reason" json:"failure_reason,omitempty"`
	DocumentText  string        `db:"document_text" json:"document_text"`
	PageCount     int           `db:"page_count" json:"page_count"`
	OCRBackend    string        `db:"ocr_backend" json:"ocr_backend,omitempty"`
	OCRConfidence float64       `db:"ocr_confidence" json:"ocr_confidence"`
	Analysis      *AnalysisResult `db:"-" json:"analysis,omitempty"`
	AnalysisJSON  []byte        `db:"analysis" json:"-"`
	HeuristicType DocumentType  `db:"heuristic_type" json:"heuristic_type,omitempty"`
	Warnings      Warnings      `db:"warnings" json:"warnings"`
	Attempts      int           `db:"attempts" json:"-"`
	RetryAfter    *time.Time    `db:"retry_after" json:"-"`
	UploadedAt    time.Time     `db:"uploaded_at" json:"uploaded_at"`
	ProcessedAt   *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
}

// EncodeAnalysis serializes Analysis into AnalysisJSON for persistence.
func (r *ProcessingResult) EncodeAnalysis() error {
	if r.Analysis == nil {
		r.AnalysisJSON = nil
		return nil
	}
	b, err := json.Marshal(r.Analysis)
	if err != nil {
		return err
	}
	r.AnalysisJSON = b
	return nil
}

// DecodeAnalysis populates Analysis from the persisted AnalysisJSON column.
func (r *ProcessingResult) DecodeAnalysis() error {
	if len(r.AnalysisJSON) == 0 {
		r.Analysis = nil
		return nil
	}
	var a AnalysisResult
	if err := json.Unmarshal(r.AnalysisJSON, &a); err != nil {
		return err
	}
	r.Analysis = &a
	return nil
}

// Warnings is a list of stage-level warning codes stored as a JSON column.
type Warnings []string

// Value implements driver.Valuer for JSONB persistence.
func (w Warnings) Value() (interface{}, error) {
	if len(w) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(w))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (w *Warnings) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*w = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(w))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(w))
	default:
		return ErrContractViolation
	}
}

// SearchFilter narrows record-store queries.
type SearchFilter struct {
	Query        string
	DocumentType string
	Status       string
	DateFrom     *time.Time
	DateTo       *time.Time
	Offset       int
	Limit        int
}

// Stats summarizes the record store for the stats endpoint.
type Stats struct {
	TotalDocuments int            `json:"total_documents"`
	ByDocumentType map[string]int `json:"by_document_type"`
	ByStatus       map[string]int `json:"by_status"`
	RecentUploads  int            `json:"recent_uploads"`
}
