package domain

import "errors"

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrCorruptUpload       = errors.New("upload bytes are unreadable")
	ErrEmptyUpload         = errors.New("upload is empty")
	ErrUploadFailed        = errors.New("file upload to storage failed")

	// ErrContractViolation marks an internal invariant breach (misaligned
	// page/result sequences and the like). It is a programming error,
	// distinct from externally caused failures, and is never retried.
	ErrContractViolation = errors.New("internal contract violation")
)

// Ingest failure reasons recorded on Failed{stage: "ingest"} results.
const (
	ReasonUnsupportedType = "unsupported_type"
	ReasonFileTooLarge    = "file_too_large"
	ReasonCorruptFile     = "corrupt_file"
	ReasonEmptyFile       = "empty_file"
)
