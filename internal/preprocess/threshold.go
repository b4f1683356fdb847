package preprocess

import "image"

const (
	// Neighborhood size and bias for adaptive thresholding, matching the
	// usual document-scan tuning: a pixel must be darker than its local
	// mean minus the bias to count as ink.
	thresholdWindow = 15
	thresholdBias   = 8
)

// adaptiveThreshold converts a grayscale image to two-tone black/white using
// a local mean threshold computed over an integral image. A fixed global
// threshold would fail on unevenly lit photographs; the local mean adapts to
// shadows and lighting gradients.
func adaptiveThreshold(src *image.Gray, window int, bias int) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(bounds)

	if w == 0 || h == 0 {
		return dst
	}
	if window < 3 {
		window = 3
	}
	half := window / 2

	// Summed-area table with a one-row/column zero border.
	integral := make([]uint64, (w+1)*(h+1))
	iw := w + 1
	for y := 0; y < h; y++ {
		var rowSum uint64
		srcRow := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			rowSum += uint64(srcRow[x])
			integral[(y+1)*iw+(x+1)] = integral[y*iw+(x+1)] + rowSum
		}
	}

	for y := 0; y < h; y++ {
		x0s := y - half
		x1s := y + half + 1
		if x0s < 0 {
			x0s = 0
		}
		if x1s > h {
			x1s = h
		}
		srcRow := src.Pix[y*src.Stride : y*src.Stride+w]
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := 0; x < w; x++ {
			y0, y1 := x0s, x1s
			x0 := x - half
			x1 := x + half + 1
			if x0 < 0 {
				x0 = 0
			}
			if x1 > w {
				x1 = w
			}
			area := uint64((x1 - x0) * (y1 - y0))
			sum := integral[y1*iw+x1] - integral[y0*iw+x1] - integral[y1*iw+x0] + integral[y0*iw+x0]
			mean := sum / area

			if uint64(srcRow[x])+uint64(bias) < mean {
				dstRow[x] = 0x00
			} else {
				dstRow[x] = 0xFF
			}
		}
	}
	return dst
}
