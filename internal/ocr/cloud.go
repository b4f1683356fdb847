package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"time"

	"docproc/internal/domain"
)

// CloudBackend extracts text through a remote OCR HTTP API. The page image
// is sent base64-encoded; the service responds with text and its own
// confidence score.
type CloudBackend struct {
	endpoint   string
	apiKey     string
	language   string
	httpClient *http.Client
}

// NewCloudBackend creates the remote OCR backend.
func NewCloudBackend(endpoint, apiKey, language string, timeout time.Duration) *CloudBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CloudBackend{
		endpoint:   endpoint,
		apiKey:     apiKey,
		language:   language,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the backend in results and logs.
func (b *CloudBackend) Name() string {
	return domain.BackendCloud
}

type cloudRequest struct {
	ImageBase64 string `json:"image_base64"`
	Language    string `json:"language,omitempty"`
}

type cloudResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// Extract sends the page to the OCR service and normalizes the response. A
// missing confidence in the response degrades to the heuristic estimate.
func (b *CloudBackend) Extract(ctx context.Context, page domain.PreprocessedImage) (domain.ExtractionResult, error) {
	if page.Image == nil {
		return domain.ExtractionResult{}, fmt.Errorf("page %d: nil image", page.Index)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, page.Image); err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("encode page %d: %w", page.Index, err)
	}

	body, err := json.Marshal(cloudRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Language:    b.language,
	})
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("marshal ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("ocr request page %d: %w", page.Index, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("read ocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ExtractionResult{}, fmt.Errorf("ocr service returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed cloudResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("parse ocr response: %w", err)
	}

	text := Normalize(parsed.Text)
	var confidence float64
	switch {
	case text == "":
		confidence = 0
	case parsed.Confidence != nil:
		confidence = clamp01(*parsed.Confidence)
	default:
		confidence = EstimateConfidence(text)
	}

	return domain.ExtractionResult{
		PageIndex:  page.Index,
		Text:       text,
		Confidence: confidence,
		Backend:    b.Name(),
	}, nil
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

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
