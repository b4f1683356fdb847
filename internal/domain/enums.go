package domain

import "strings"

// FileType represents the allowed file types for upload.
type FileType string

const (
	FileTypePDF FileType = "pdf"
	FileTypeJPG FileType = "jpg"
	FileTypePNG FileType = "png"
)

// AllowedFileTypes maps FileType to its MIME content type.
var AllowedFileTypes = map[FileType]string{
	FileTypePDF: "application/pdf",
	FileTypeJPG: "image/jpeg",
	FileTypePNG: "image/png",
}

// AllowedContentTypes maps MIME content types back to FileType.
var AllowedContentTypes = map[string]FileType{
	"application/pdf": FileTypePDF,
	"image/jpeg":      FileTypeJPG,
	"image/png":       FileTypePNG,
}

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"pdf":  FileTypePDF,
	"jpg":  FileTypeJPG,
	"jpeg": FileTypeJPG,
	"png":  FileTypePNG,
}

// DocumentType is the closed classification set for analyzed documents.
type DocumentType string

const (
	DocTypeInvoice  DocumentType = "invoice"
	DocTypeReceipt  DocumentType = "receipt"
	DocTypeContract DocumentType = "contract"
	DocTypeLetter   DocumentType = "letter"
	DocTypeForm     DocumentType = "form"
	DocTypeOther    DocumentType = "other"
)

var documentTypes = map[DocumentType]struct{}{
	DocTypeInvoice:  {},
	DocTypeReceipt:  {},
	DocTypeContract: {},
	DocTypeLetter:   {},
	DocTypeForm:     {},
	DocTypeOther:    {},
}

// NormalizeDocumentType maps a raw label onto the closed set. Labels outside
// the set report ok=false and come back as DocTypeOther, so callers never
// pass an unrecognized classification through raw.
func NormalizeDocumentType(raw string) (DocumentType, bool) {
	dt := DocumentType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := documentTypes[dt]; ok {
		return dt, true
	}
	return DocTypeOther, false
}

// RunStatus represents the queued, in-flight, or terminal status of a
// processing run as persisted on its record.
type RunStatus string

const (
	StatusQueued     RunStatus = "queued"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusOCROnly    RunStatus = "ocr_only"
	StatusFailed     RunStatus = "failed"
)

// Stage identifies one step of the pipeline state machine.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StagePreprocess Stage = "preprocess"
	StageExtract    Stage = "extract"
	StageNormalize  Stage = "normalize"
	StageAnalyze    Stage = "analyze"
)

// Stage-level warnings recorded on a ProcessingResult. These never abort a
// run; they describe recoverable degradations the caller may care about.
const (
	WarnPreprocessFailed      = "preprocess_failed"
	WarnPageExtractionFailed  = "page_extraction_failed"
	WarnOCRLowConfidence      = "ocr_low_confidence"
	WarnNoTextExtracted       = "no_text_extracted"
	WarnAIParseFallback       = "ai_parse_fallback"
	WarnUnknownDocumentType   = "unknown_document_type"
	WarnMissingClassification = "missing_classification"
	WarnStorageUploadFailed   = "storage_upload_failed"
	WarnAnalysisUnavailable   = "analysis_unavailable"
)

// OCR backend identifiers, selected once per pipeline from configuration.
const (
	BackendTesseract = "tesseract"
	BackendCloud     = "cloud"
)
