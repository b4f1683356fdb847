package preprocess

import (
	"image"
	"math"
)

const (
	// Candidate rotation range and step for the projection-profile search.
	maxSkewDeg  = 8.0
	skewStepDeg = 0.5

	// Rotations below this magnitude are noise, not skew.
	minApplyDeg = 0.5

	// The best candidate must beat the unrotated profile score by this
	// factor, otherwise the estimate is inconclusive and no rotation is
	// applied.
	minScoreGain = 1.10

	// Minimum number of ink pixels for a meaningful estimate.
	minInkPixels = 256

	// Sampling cap: the estimator works on a strided view of the page.
	sampleMaxDim = 800
)

// estimateSkew estimates the rotation angle (degrees, counterclockwise) that
// would bring detected text lines to horizontal. It reports ok=false when the
// page carries no strong line signal; an inconclusive estimate must never
// produce a rotation.
func estimateSkew(src *image.Gray) (float64, bool) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 16 || h < 16 {
		return 0, false
	}

	stride := 1
	if m := max(w, h); m > sampleMaxDim {
		stride = (m + sampleMaxDim - 1) / sampleMaxDim
	}

	// Collect ink (dark) pixel coordinates against a mean threshold.
	var sum uint64
	var n uint64
	for y := 0; y < h; y += stride {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x += stride {
			sum += uint64(row[x])
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	mean := uint8(sum / n)

	type pt struct{ x, y int }
	var ink []pt
	for y := 0; y < h; y += stride {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x += stride {
			if row[x] < mean {
				ink = append(ink, pt{x / stride, y / stride})
			}
		}
	}
	if len(ink) < minInkPixels {
		return 0, false
	}

	rows := h/stride + 1
	hist := make([]float64, rows+1)

	score := func(angleDeg float64) float64 {
		for i := range hist {
			hist[i] = 0
		}
		tan := math.Tan(angleDeg * math.Pi / 180)
		for _, p := range ink {
			yy := float64(p.y) - float64(p.x)*tan
			bin := int(math.Round(yy))
			if bin >= 0 && bin < len(hist) {
				hist[bin]++
			}
		}
		// Sharply peaked profiles (aligned text rows) maximize the sum of
		// squared bin counts.
		var s float64
		for _, c := range hist {
			s += c * c
		}
		return s
	}

	zero := score(0)
	best, bestAngle := zero, 0.0
	for a := -maxSkewDeg; a <= maxSkewDeg+1e-9; a += skewStepDeg {
		if a == 0 {
			continue
		}
		if s := score(a); s > best {
			best, bestAngle = s, a
		}
	}

	if math.Abs(bestAngle) < minApplyDeg {
		return 0, false
	}
	if zero <= 0 || best < zero*minScoreGain {
		return 0, false
	}
	return bestAngle, true
}
