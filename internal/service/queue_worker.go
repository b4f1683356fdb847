package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"docproc/internal/config"
	"docproc/internal/domain"
	"docproc/internal/port"
)

// QueueWorker periodically claims records stuck in status queued (a crash
// between ingest and processing, or a requeue) and runs them through the
// pipeline. Claims are bounded by the concurrency limit; in-flight runs get
// a fresh context so shutdown does not cancel them mid-stage.
type QueueWorker struct {
	repo     port.ResultRepository
	svc      *DocumentService
	interval time.Duration
	sem      chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewQueueWorker creates the worker from queue configuration.
func NewQueueWorker(repo port.ResultRepository, svc *DocumentService, cfg config.QueueConfig) *QueueWorker {
	interval := time.Duration(cfg.PollIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &QueueWorker{
		repo:     repo,
		svc:      svc,
		interval: interval,
		sem:      make(chan struct{}, concurrency),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop. It returns immediately.
func (w *QueueWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		log.Printf("QueueWorker.Start: polling every %s", w.interval)
		for {
			select {
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.drain()
			}
		}
	}()
}

// Stop halts polling and waits for in-flight runs to finish.
func (w *QueueWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	log.Printf("QueueWorker.Stop: drained")
}

func (w *QueueWorker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	claimed, err := w.repo.ClaimQueued(ctx, cap(w.sem))
	cancel()
	if err != nil {
		log.Printf("QueueWorker.drain: claim failed: %v", err)
		return
	}
	for i := range claimed {
		res := claimed[i]
		select {
		case w.sem <- struct{}{}:
		case <-w.stopCh:
			w.requeue(&res)
			return
		}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.runOne(&res)
		}()
	}
}

func (w *QueueWorker) runOne(res *domain.ProcessingResult) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()
	if err := w.svc.ProcessQueued(ctx, res); err != nil {
		log.Printf("QueueWorker.runOne: record %s failed: %v", res.ID, err)
		w.backoffRequeue(res.ID)
	}
}

// requeueBackoff is the per-attempt delay added to retry_after when a claim
// never reached a terminal status.
const requeueBackoff = time.Minute

// backoffRequeue returns a claim that died before any terminal status could
// be written (a storage download failure, a lost DB connection) to the
// queue. The retry_after delay grows with the attempt count so a persistent
// failure does not hot-loop through the worker.
func (w *QueueWorker) backoffRequeue(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cur, err := w.repo.GetByID(ctx, id)
	if err != nil {
		log.Printf("QueueWorker.backoffRequeue: record %s could not be reloaded: %v", id, err)
		return
	}
	if cur.Status != domain.StatusProcessing {
		// The run persisted a terminal status before dying. Leave it.
		return
	}
	after := time.Now().UTC().Add(time.Duration(cur.Attempts+1) * requeueBackoff)
	cur.Status = domain.StatusQueued
	cur.RetryAfter = &after
	if err := w.repo.SaveResult(ctx, cur); err != nil {
		log.Printf("QueueWorker.backoffRequeue: record %s could not be requeued: %v", id, err)
	}
}

// requeue puts an unstarted claim back so the next worker pass picks it up.
func (w *QueueWorker) requeue(res *domain.ProcessingResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res.Status = domain.StatusQueued
	if err := w.repo.SaveResult(ctx, res); err != nil {
		log.Printf("QueueWorker.requeue: record %s could not be requeued: %v", res.ID, err)
	}
}
