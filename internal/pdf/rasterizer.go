// Package pdf turns upload bytes into page images. PDFs are rasterized with
// MuPDF via go-fitz; JPG and PNG uploads decode to a single page.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log"

	"github.com/gen2brain/go-fitz"

	"docproc/internal/domain"
)

const defaultDPI = 200

// Rasterizer implements port.Rasterizer.
type Rasterizer struct {
	dpi float64
}

// New creates a Rasterizer rendering PDF pages at the given DPI.
func New(dpi float64) *Rasterizer {
	if dpi <= 0 {
		dpi = defaultDPI
	}
	return &Rasterizer{dpi: dpi}
}

// Pages decodes data into ordered page images. Unreadable input wraps
// domain.ErrCorruptUpload so ingest can reject it; a single bad page inside
// an otherwise readable PDF is skipped with a gap-free reindexing left to
// the caller via the page Index field.
func (r *Rasterizer) Pages(ctx context.Context, data []byte, fileType domain.FileType) ([]domain.PageImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrCorruptUpload)
	}

	switch fileType {
	case domain.FileTypePDF:
		return r.pdfPages(ctx, data)
	case domain.FileTypeJPG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decode jpeg: %v", domain.ErrCorruptUpload, err)
		}
		return []domain.PageImage{{Index: 0, Image: img, Source: fileType}}, nil
	case domain.FileTypePNG:
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decode png: %v", domain.ErrCorruptUpload, err)
		}
		return []domain.PageImage{{Index: 0, Image: img, Source: fileType}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFileType, fileType)
	}
}

func (r *Rasterizer) pdfPages(ctx context.Context, data []byte) ([]domain.PageImage, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", domain.ErrCorruptUpload, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", domain.ErrCorruptUpload)
	}

	pages := make([]domain.PageImage, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, r.dpi)
		if err != nil {
			log.Printf("Rasterizer.Pages: page %d/%d failed to render: %v", i+1, total, err)
			continue
		}
		pages = append(pages, domain.PageImage{Index: i, Image: img, Source: domain.FileTypePDF})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pdf page could be rendered", domain.ErrCorruptUpload)
	}
	return pages, nil
}
