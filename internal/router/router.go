package router

import (
	"github.com/gin-gonic/gin"

	"docproc/internal/config"
	"docproc/internal/handler"
	"docproc/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	cfg *config.Config,
	documentH *handler.DocumentHandler,
	exportH *handler.ExportHandler,
	statsH *handler.StatsHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	documents := v1.Group("/documents")
	documents.POST("", documentH.Upload)
	documents.GET("", documentH.List)
	documents.GET("/search", documentH.Search)
	documents.GET("/:id", documentH.GetByID)
	documents.DELETE("/:id", documentH.Delete)

	v1.GET("/stats", statsH.Get)

	exports := v1.Group("/export")
	exports.GET("/csv", exportH.CSV)
	exports.GET("/xlsx", exportH.XLSX)

	return r
}
