package port

import (
	"context"

	"docproc/internal/domain"
)

// Rasterizer turns raw upload bytes into a page-ordered sequence of images:
// one page for JPG/PNG uploads, one per page for PDFs. Unreadable bytes are
// an error wrapping domain.ErrCorruptUpload (fatal at ingest).
type Rasterizer interface {
	Pages(ctx context.Context, data []byte, fileType domain.FileType) ([]domain.PageImage, error)
}
