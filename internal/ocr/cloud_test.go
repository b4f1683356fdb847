package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docproc/internal/config"
	"docproc/internal/domain"
)

func TestCloudExtract(t *testing.T) {
	var gotAuth string
	var gotReq cloudRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		conf := 0.93
		json.NewEncoder(w).Encode(cloudResponse{Text: "Receipt total 12.50\n", Confidence: &conf})
	}))
	defer server.Close()

	backend := NewCloudBackend(server.URL, "test-key", "eng", time.Minute)
	result, err := backend.Extract(context.Background(), testPage())

	require.NoError(t, err)
	assert.Equal(t, "Receipt total 12.50", result.Text)
	assert.Equal(t, 0.93, result.Confidence)
	assert.Equal(t, domain.BackendCloud, result.Backend)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "eng", gotReq.Language)
	decoded, err := base64.StdEncoding.DecodeString(gotReq.ImageBase64)
	require.NoError(t, err)
	assert.NotEmpty(t, decoded)
}

func TestCloudExtractMissingConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "Plain readable text from the scanner output."})
	}))
	defer server.Close()

	backend := NewCloudBackend(server.URL, "k", "", time.Minute)
	result, err := backend.Extract(context.Background(), testPage())

	require.NoError(t, err)
	assert.Greater(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestCloudExtractServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	backend := NewCloudBackend(server.URL, "k", "", time.Minute)
	_, err := backend.Extract(context.Background(), testPage())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestCloudExtractUnreachable(t *testing.T) {
	backend := NewCloudBackend("http://127.0.0.1:1", "k", "", time.Second)

	_, err := backend.Extract(context.Background(), testPage())

	require.Error(t, err)
}

func TestCloudExtractEmptyText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conf := 0.9
		json.NewEncoder(w).Encode(cloudResponse{Text: "   ", Confidence: &conf})
	}))
	defer server.Close()

	backend := NewCloudBackend(server.URL, "k", "", time.Minute)
	result, err := backend.Extract(context.Background(), testPage())

	require.NoError(t, err)
	assert.Empty(t, result.Text)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestCloudExtractConfidenceClamped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conf := 1.7
		json.NewEncoder(w).Encode(cloudResponse{Text: "ok", Confidence: &conf})
	}))
	defer server.Close()

	backend := NewCloudBackend(server.URL, "k", "", time.Minute)
	result, err := backend.Extract(context.Background(), testPage())

	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestNewBackendFactory(t *testing.T) {
	backend, err := NewBackend(config.OCRConfig{Backend: "tesseract", TimeoutSecs: 30})
	require.NoError(t, err)
	assert.Equal(t, domain.BackendTesseract, backend.Name())

	backend, err = NewBackend(config.OCRConfig{
		Backend:       "cloud",
		CloudEndpoint: "https://ocr.example.com/v1/extract",
		CloudAPIKey:   "k",
		TimeoutSecs:   30,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BackendCloud, backend.Name())

	_, err = NewBackend(config.OCRConfig{Backend: "carrier-pigeon"})
	require.Error(t, err)
}
