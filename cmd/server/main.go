package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"docproc/internal/analyzer"
	"docproc/internal/config"
	"docproc/internal/handler"
	"docproc/internal/ocr"
	"docproc/internal/pdf"
	"docproc/internal/pipeline"
	"docproc/internal/preprocess"
	"docproc/internal/repository/postgres"
	"docproc/internal/router"
	"docproc/internal/service"
	s3storage "docproc/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repository and storage
	resultRepo := postgres.NewResultRepo(db)
	s3Client, err := s3storage.NewS3Client(&cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	// Initialize pipeline stages
	backend, err := ocr.NewBackend(cfg.OCR)
	if err != nil {
		return fmt.Errorf("failed to initialize OCR backend: %w", err)
	}
	pipe := pipeline.New(
		pdf.New(cfg.OCR.DPI),
		preprocess.New(preprocess.Options{
			Deskew:     cfg.Preprocess.Deskew,
			Binarize:   cfg.Preprocess.Binarize,
			Denoise:    cfg.Preprocess.Denoise,
			BlurRadius: cfg.Preprocess.BlurRadius,
		}),
		backend,
		analyzer.NewClient(cfg.AI),
		pipeline.Options{
			PageWorkers:   cfg.OCR.PageWorkers,
			PageRetries:   cfg.OCR.PageRetries,
			MaxAIAttempts: cfg.AI.MaxAttempts,
		},
	)

	// Initialize services and handlers
	documentSvc := service.NewDocumentService(resultRepo, s3Client, pipe, cfg.S3, cfg.Upload)
	documentH := handler.NewDocumentHandler(documentSvc)
	exportH := handler.NewExportHandler(documentSvc)
	statsH := handler.NewStatsHandler(documentSvc)
	healthH := handler.NewHealthHandler(db)

	r := router.Setup(cfg, documentH, exportH, statsH, healthH)

	// Queue worker drains runs that never finished
	worker := service.NewQueueWorker(resultRepo, documentSvc, cfg.Queue)
	worker.Start()
	defer worker.Stop()

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s (ocr backend: %s)", cfg.Server.Port, backend.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
