package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"docproc/internal/config"
	"docproc/internal/domain"
)

const (
	requestTemperature = 0.1
	requestMaxTokens   = 1000
)

// Client analyzes document text through an OpenRouter-compatible chat
// completions API. A single Client is shared by all pipeline runs so the
// rate limiter governs the whole process, not one document.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an analysis client from configuration.
func NewClient(cfg config.AIConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 1
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze sends the text to the model and parses the structured reply.
// Warnings report recoverable degradations (lenient JSON recovery, coerced
// classification). The error, when non-nil, is always *AnalysisError.
func (c *Client) Analyze(ctx context.Context, text string) (*domain.AnalysisResult, []string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, &AnalysisError{Kind: ErrKindEmptyInput, Err: fmt.Errorf("no text to analyze")}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, &AnalysisError{Kind: ErrKindNetwork, Err: fmt.Errorf("rate limiter wait: %w", err)}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(text)},
		},
		Temperature: requestTemperature,
		MaxTokens:   requestMaxTokens,
	})
	if err != nil {
		return nil, nil, &AnalysisError{Kind: ErrKindInvalidResponse, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, &AnalysisError{Kind: ErrKindInvalidResponse, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, &AnalysisError{Kind: ErrKindNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &AnalysisError{Kind: ErrKindNetwork, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, nil, &AnalysisError{
			Kind:       ErrKindRateLimited,
			Err:        fmt.Errorf("provider rate limit: %s", snippet(respBody)),
			RetryAfter: ParseRetryAfterHeader(resp.Header),
		}
	case resp.StatusCode >= 500:
		return nil, nil, &AnalysisError{
			Kind: ErrKindNetwork,
			Err:  fmt.Errorf("provider returned status %d: %s", resp.StatusCode, snippet(respBody)),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, nil, &AnalysisError{
			Kind: ErrKindInvalidResponse,
			Err:  fmt.Errorf("provider returned status %d: %s", resp.StatusCode, snippet(respBody)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, nil, &AnalysisError{Kind: ErrKindInvalidResponse, Err: fmt.Errorf("parse response envelope: %w", err)}
	}
	if parsed.Error != nil {
		return nil, nil, &AnalysisError{Kind: ErrKindInvalidResponse, Err: fmt.Errorf("provider error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return nil, nil, &AnalysisError{Kind: ErrKindInvalidResponse, Err: fmt.Errorf("response has no choices")}
	}

	result, warnings, err := parseAnalysis(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, nil, err
	}
	if len(warnings) > 0 {
		log.Printf("Client.Analyze: model %s returned degraded output: %v", c.model, warnings)
	}
	return result, warnings, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
