package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docproc/internal/config"
	"docproc/internal/domain"
	"docproc/internal/pdf"
	"docproc/internal/pipeline"
	"docproc/internal/port"
	"docproc/internal/preprocess"
	"docproc/internal/service"
	"docproc/mocks"
)

type stubBackend struct{}

func (stubBackend) Name() string { return "stub" }

func (stubBackend) Extract(_ context.Context, page domain.PreprocessedImage) (domain.ExtractionResult, error) {
	return domain.ExtractionResult{PageIndex: page.Index, Text: "text", Confidence: 0.9, Backend: "stub"}, nil
}

func newTestRouter(repo *mocks.MockResultRepository, storage *mocks.MockObjectStorage) *gin.Engine {
	gin.SetMode(gin.TestMode)
	pipe := pipeline.New(
		pdf.New(0),
		preprocess.New(preprocess.Options{}),
		stubBackend{},
		stubAnalyzer{},
		pipeline.Options{RetryBaseDelay: time.Millisecond},
	)
	svc := service.NewDocumentService(repo, storage, pipe,
		config.S3Config{Bucket: "b", PresignExpiry: 60},
		config.UploadConfig{MaxFileSizeMB: 10, AllowedExtensions: []string{"pdf", "jpg", "jpeg", "png"}},
	)

	r := gin.New()
	h := NewDocumentHandler(svc)
	s := NewStatsHandler(svc)
	r.POST("/api/v1/documents", h.Upload)
	r.GET("/api/v1/documents", h.List)
	r.GET("/api/v1/documents/search", h.Search)
	r.GET("/api/v1/documents/:id", h.GetByID)
	r.DELETE("/api/v1/documents/:id", h.Delete)
	r.GET("/api/v1/stats", s.Get)
	return r
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, _ string) (*domain.AnalysisResult, []string, error) {
	return &domain.AnalysisResult{DocumentType: domain.DocTypeOther}, nil, nil
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	r := newTestRouter(new(mocks.MockResultRepository), new(mocks.MockObjectStorage))

	body, contentType := multipartBody(t, "file", "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "UNSUPPORTED_FILE_TYPE", resp.Error.Code)
}

func TestUploadMissingFile(t *testing.T) {
	r := newTestRouter(new(mocks.MockResultRepository), new(mocks.MockObjectStorage))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAcceptsQueuedRecord(t *testing.T) {
	repo := new(mocks.MockResultRepository)
	storage := new(mocks.MockObjectStorage)
	r := newTestRouter(repo, storage)

	repo.On("GetByContentHash", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{Location: "https://s3/b/k"}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("GetByID", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound).Maybe()

	body, contentType := multipartBody(t, "file", "scan.png", pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestGetByIDInvalidUUID(t *testing.T) {
	r := newTestRouter(new(mocks.MockResultRepository), new(mocks.MockObjectStorage))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetByIDNotFound(t *testing.T) {
	repo := new(mocks.MockResultRepository)
	r := newTestRouter(repo, new(mocks.MockObjectStorage))

	id := uuid.New()
	repo.On("GetByID", mock.Anything, id).Return(nil, domain.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+id.String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPaginated(t *testing.T) {
	repo := new(mocks.MockResultRepository)
	r := newTestRouter(repo, new(mocks.MockObjectStorage))

	repo.On("List", mock.Anything, 5, 2).Return([]domain.ProcessingResult{
		{ID: uuid.New()}, {ID: uuid.New()},
	}, 42, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents?offset=5&limit=2", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 42, resp.Meta.Total)
	assert.Equal(t, 5, resp.Meta.Offset)
}

func TestSearchPassesFilter(t *testing.T) {
	repo := new(mocks.MockResultRepository)
	r := newTestRouter(repo, new(mocks.MockObjectStorage))

	var gotFilter domain.SearchFilter
	repo.On("Search", mock.Anything, mock.AnythingOfType("domain.SearchFilter")).
		Run(func(args mock.Arguments) { gotFilter = args.Get(1).(domain.SearchFilter) }).
		Return([]domain.ProcessingResult{}, 0, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/documents/search?q=invoice&type=invoice&status=completed", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "invoice", gotFilter.Query)
	assert.Equal(t, "invoice", gotFilter.DocumentType)
	assert.Equal(t, "completed", gotFilter.Status)
}

func TestStats(t *testing.T) {
	repo := new(mocks.MockResultRepository)
	r := newTestRouter(repo, new(mocks.MockObjectStorage))

	repo.On("Stats", mock.Anything).Return(&domain.Stats{
		TotalDocuments: 7,
		ByStatus:       map[string]int{"completed": 5, "ocr_only": 2},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_documents":7`)
}
