package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docproc/internal/domain"
	"docproc/internal/export"
	"docproc/internal/service"
)

// exportBatchLimit caps how many records one export pulls.
const exportBatchLimit = 1000

// ExportHandler streams processing results as CSV or XLSX downloads.
type ExportHandler struct {
	svc *service.DocumentService
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(svc *service.DocumentService) *ExportHandler {
	return &ExportHandler{svc: svc}
}

// CSV handles GET /api/v1/export/csv
func (h *ExportHandler) CSV(c *gin.Context) {
	results, err := h.load(c)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	fileName := fmt.Sprintf("documents_%s.csv", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	c.Header("Content-Type", "text/csv; charset=utf-8")

	c.Writer.Write(export.BOM)
	w := export.NewWriter(c.Writer)
	if err := w.WriteHeader(); err != nil {
		RespondError(c, http.StatusInternalServerError, "EXPORT_FAILED", "failed to write export")
		return
	}
	if err := w.WriteResults(results); err != nil {
		RespondError(c, http.StatusInternalServerError, "EXPORT_FAILED", "failed to write export")
		return
	}
	if err := w.Flush(); err != nil {
		RespondError(c, http.StatusInternalServerError, "EXPORT_FAILED", "failed to write export")
	}
}

// XLSX handles GET /api/v1/export/xlsx
func (h *ExportHandler) XLSX(c *gin.Context) {
	results, err := h.load(c)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, results); err != nil {
		RespondError(c, http.StatusInternalServerError, "EXPORT_FAILED", "failed to build workbook")
		return
	}

	fileName := fmt.Sprintf("documents_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// load fetches the export batch, honoring the same filters as search.
func (h *ExportHandler) load(c *gin.Context) ([]domain.ProcessingResult, error) {
	filter := domain.SearchFilter{
		Query:        c.Query("q"),
		DocumentType: c.Query("type"),
		Status:       c.Query("status"),
		Limit:        exportBatchLimit,
	}
	results, _, err := h.svc.Search(c.Request.Context(), filter)
	return results, err
}
