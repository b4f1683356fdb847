package ocr

import (
	"fmt"
	"time"

	"docproc/internal/config"
	"docproc/internal/domain"
	"docproc/internal/port"
)

// NewBackend builds the configured OCR backend. The choice is made once at
// startup; individual extractions never switch backends.
func NewBackend(cfg config.OCRConfig) (port.OCRBackend, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	switch cfg.Backend {
	case domain.BackendTesseract:
		return NewTesseractBackend(NewExecRunner(), cfg.Tesseract, cfg.TesseractLang, timeout), nil
	case domain.BackendCloud:
		return NewCloudBackend(cfg.CloudEndpoint, cfg.CloudAPIKey, cfg.TesseractLang, timeout), nil
	default:
		return nil, fmt.Errorf("unknown ocr backend: %q", cfg.Backend)
	}
}
