package analyzer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"docproc/internal/domain"
)

// defaultConfidence substitutes for a reply that omits the confidence key.
const defaultConfidence = 0.5

// rawAnalysis is the shape we accept from the model before coercion. Loose
// types absorb the usual model sloppiness: numeric fields arriving as
// strings, field values arriving as numbers.
type rawAnalysis struct {
	DocumentType string                 `json:"document_type"`
	Confidence   *float64               `json:"confidence"`
	Fields       map[string]interface{} `json:"fields"`
	Summary      string                 `json:"summary"`
	Language     string                 `json:"language"`
	WordCount    int                    `json:"word_count"`
}

// parseAnalysis turns the model's reply content into an AnalysisResult.
// Parsing is strict first; when the reply wraps the JSON in prose, the
// outermost brace-delimited span is retried and a warning is recorded.
func parseAnalysis(content string) (*domain.AnalysisResult, []string, error) {
	var warnings []string

	raw, recovered, err := decodeContent(content)
	if err != nil {
		return nil, nil, &AnalysisError{Kind: ErrKindInvalidResponse, Err: err}
	}
	if recovered {
		warnings = append(warnings, domain.WarnAIParseFallback)
	}

	result := &domain.AnalysisResult{
		Summary:   strings.TrimSpace(raw.Summary),
		Language:  strings.TrimSpace(raw.Language),
		WordCount: raw.WordCount,
		Fields:    coerceFields(raw.Fields),
	}

	switch {
	case strings.TrimSpace(raw.DocumentType) == "":
		result.DocumentType = domain.DocTypeOther
		warnings = append(warnings, domain.WarnMissingClassification)
	default:
		dt, known := domain.NormalizeDocumentType(raw.DocumentType)
		result.DocumentType = dt
		if !known {
			warnings = append(warnings, domain.WarnUnknownDocumentType)
		}
	}

	if raw.Confidence == nil {
		result.Confidence = defaultConfidence
	} else {
		result.Confidence = clamp01(*raw.Confidence)
	}

	return result, warnings, nil
}

// decodeContent parses content as JSON, falling back to the substring from
// the first '{' to the last '}'. The recovered flag reports that the
// fallback was needed.
func decodeContent(content string) (rawAnalysis, bool, error) {
	var raw rawAnalysis
	trimmed := strings.TrimSpace(content)

	if err := json.Unmarshal([]byte(trimmed), &raw); err == nil {
		return raw, false, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end <= start {
		return rawAnalysis{}, false, fmt.Errorf("reply contains no JSON object: %q", snippetStr(trimmed))
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &raw); err != nil {
		return rawAnalysis{}, false, fmt.Errorf("reply JSON unparseable even after recovery: %w", err)
	}
	return raw, true, nil
}

// coerceFields flattens arbitrary JSON field values to strings. Nested
// structures are dropped; scalar values are formatted.
func coerceFields(in map[string]interface{}) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = fmt.Sprintf("%t", val)
		case nil:
			// skip
		default:
			// nested object or array, not a field value
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func snippetStr(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
