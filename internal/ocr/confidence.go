package ocr

import (
	"strings"
	"unicode"
)

// LowConfidenceThreshold marks extraction results whose text is likely
// garbage. Empty text always scores below it.
const LowConfidenceThreshold = 0.30

// minConfidentLength is the rune count below which the readable-share term
// is scaled down. Outputs this short cannot score as trustworthy prose.
const minConfidentLength = 20

// Normalize cleans raw OCR output: line endings unified, trailing whitespace
// stripped per line, runs of blank lines collapsed, and the whole text
// trimmed.
func Normalize(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// EstimateConfidence scores extracted text in [0,1] from surface features
// alone. It is the fallback when a backend reports no confidence of its own:
// short or symbol-heavy output scores low, prose-like output scores high.
func EstimateConfidence(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	var letters, digits, spaces, other int
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		case unicode.IsSpace(r):
			spaces++
		default:
			other++
		}
	}
	total := letters + digits + spaces + other

	// Share of readable characters drives the score, but only once there is
	// enough text to judge: a couple of stray letters is not evidence.
	readable := float64(letters+digits+spaces) / float64(total)
	score := readable * 0.8
	length := float64(total)
	if length < minConfidentLength {
		score *= length / minConfidentLength
	}

	// Longer extractions are more trustworthy, capped at 200 runes.
	if length > 200 {
		length = 200
	}
	score += 0.2 * (length / 200)

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}
