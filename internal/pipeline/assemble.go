package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"docproc/internal/domain"
)

// PageBreakMarker separates page texts in the assembled document. Form feed
// survives plain-text storage and never occurs in OCR output.
const PageBreakMarker = "\f"

// Assemble joins per-page extraction results into one document text in page
// order. The results must correspond one-to-one with the pages that produced
// them; any mismatch is an internal contract violation, not a data error.
func Assemble(pages []domain.PageImage, results []domain.ExtractionResult) (string, error) {
	if len(pages) != len(results) {
		return "", fmt.Errorf("%w: %d pages but %d extraction results",
			domain.ErrContractViolation, len(pages), len(results))
	}

	expected := make(map[int]struct{}, len(pages))
	for _, p := range pages {
		expected[p.Index] = struct{}{}
	}
	for _, r := range results {
		if _, ok := expected[r.PageIndex]; !ok {
			return "", fmt.Errorf("%w: extraction result for unknown page index %d",
				domain.ErrContractViolation, r.PageIndex)
		}
		delete(expected, r.PageIndex)
	}
	if len(expected) != 0 {
		return "", fmt.Errorf("%w: %d pages have no extraction result",
			domain.ErrContractViolation, len(expected))
	}

	ordered := make([]domain.ExtractionResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PageIndex < ordered[j].PageIndex })

	parts := make([]string, len(ordered))
	for i, r := range ordered {
		parts[i] = strings.TrimSpace(r.Text)
	}
	return strings.Join(parts, PageBreakMarker), nil
}
