package handler

import (
	"github.com/gin-gonic/gin"

	"docproc/internal/service"
)

// StatsHandler serves record-store summary statistics.
type StatsHandler struct {
	svc *service.DocumentService
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(svc *service.DocumentService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// Get handles GET /api/v1/stats
func (h *StatsHandler) Get(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, stats)
}
