package analyzer

import (
	"strings"

	"docproc/internal/domain"
)

// Keyword lists per document type for the heuristic classifier. Matching is
// case-insensitive on the whole text.
var keywordSets = []struct {
	docType  domain.DocumentType
	keywords []string
}{
	{domain.DocTypeInvoice, []string{"invoice", "invoice number", "bill to", "amount due", "payment terms", "due date"}},
	{domain.DocTypeReceipt, []string{"receipt", "total paid", "change due", "cash", "card ending", "thank you for your purchase"}},
	{domain.DocTypeContract, []string{"agreement", "contract", "terms and conditions", "hereinafter", "whereas", "party of the"}},
	{domain.DocTypeLetter, []string{"dear ", "sincerely", "yours faithfully", "best regards", "kind regards"}},
	{domain.DocTypeForm, []string{"application form", "please fill", "please complete", "signature:", "date of birth", "check one"}},
}

// ClassifyKeyword is the fallback classifier used when AI analysis is
// unavailable: it scores keyword occurrences per type and returns the best
// match, or DocTypeOther when nothing matches. It makes no confidence claim
// and its result is recorded separately from AI classifications.
func ClassifyKeyword(text string) domain.DocumentType {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return domain.DocTypeOther
	}

	best := domain.DocTypeOther
	bestScore := 0
	for _, set := range keywordSets {
		score := 0
		for _, kw := range set.keywords {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			bestScore = score
			best = set.docType
		}
	}
	return best
}
