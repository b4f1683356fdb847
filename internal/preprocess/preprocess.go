// Package preprocess normalizes page images for OCR: deskew, adaptive
// binarization, despeckling, and a mild smoothing blur, in that fixed order.
// Every step is optional and none short-circuits the rest.
package preprocess

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/gift"

	"docproc/internal/domain"
)

// Options enumerates the preprocessing steps. The zero value disables
// everything; DefaultOptions returns the tuning used in production.
type Options struct {
	Deskew     bool
	Binarize   bool
	Denoise    bool
	BlurRadius int
}

// DefaultOptions returns the step selection tuned for OCR accuracy.
func DefaultOptions() Options {
	return Options{Deskew: true, Binarize: true, Denoise: true, BlurRadius: 1}
}

// Preprocessor applies raster transforms to page images. It is stateless and
// safe for concurrent use across pipeline runs.
type Preprocessor struct {
	opts Options
}

// New creates a Preprocessor with the given step selection.
func New(opts Options) *Preprocessor {
	return &Preprocessor{opts: opts}
}

// Apply produces a new PreprocessedImage from page; the source image is never
// mutated. An error means the page buffer was unusable; callers treat that
// as non-fatal and fall back to the original image.
func (p *Preprocessor) Apply(page domain.PageImage) (domain.PreprocessedImage, error) {
	if page.Image == nil {
		return domain.PreprocessedImage{}, fmt.Errorf("page %d: nil image buffer", page.Index)
	}
	bounds := page.Image.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return domain.PreprocessedImage{}, fmt.Errorf("page %d: empty image bounds %v", page.Index, bounds)
	}

	gray := toGray(page.Image)

	// 1. Deskew. Rotation is applied only when the text-line angle estimate
	// is conclusive; a weak signal skips the step rather than guessing.
	if p.opts.Deskew {
		if angle, ok := estimateSkew(gray); ok {
			gray = rotateGray(gray, angle)
		}
	}

	// 2. Binarize with an adaptive local threshold to tolerate uneven
	// lighting across the scan.
	if p.opts.Binarize {
		gray = adaptiveThreshold(gray, thresholdWindow, thresholdBias)
	}

	// 3. Denoise small-scale speckle without eroding character strokes.
	if p.opts.Denoise {
		gray = applyGrayFilter(gray, gift.Median(3, true))
	}

	// 4. Smooth character edges before OCR.
	if p.opts.BlurRadius > 0 {
		gray = applyGrayFilter(gray, gift.GaussianBlur(float32(p.opts.BlurRadius)))
	}

	return domain.PreprocessedImage{Index: page.Index, Image: gray}, nil
}

func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		out := image.NewGray(g.Bounds())
		copy(out.Pix, g.Pix)
		return out
	}
	return applyGrayFilter(src, gift.Grayscale())
}

func applyGrayFilter(src image.Image, filters ...gift.Filter) *image.Gray {
	g := gift.New(filters...)
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}

func rotateGray(src *image.Gray, angleDeg float64) *image.Gray {
	g := gift.New(gift.Rotate(float32(angleDeg), color.White, gift.CubicInterpolation))
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}
