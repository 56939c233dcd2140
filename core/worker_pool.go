package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/BranchIntl/ojsworker/middleware"
)

// WorkerPool manages the execution units of one run
type WorkerPool struct {
	workers       []*Worker
	done          []chan struct{}
	activeWorkers int32
	logger        *slog.Logger
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(
	id string,
	concurrency int,
	queues []string,
	registry Registry,
	chain *middleware.Chain,
	stats Statistics,
	transport Transport,
	logger *slog.Logger,
) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}

	workers := make([]*Worker, concurrency)
	for i := 0; i < concurrency; i++ {
		workers[i] = NewWorker(
			fmt.Sprintf("%s-%d", id, i),
			queues,
			registry,
			chain,
			stats,
			transport,
			logger,
		)
	}

	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Start spawns one goroutine per worker and returns immediately
func (wp *WorkerPool) Start(ctx context.Context, queue *workQueue, active *activeSet) {
	wp.done = make([]chan struct{}, len(wp.workers))
	for i, worker := range wp.workers {
		done := make(chan struct{})
		wp.done[i] = done

		atomic.AddInt32(&wp.activeWorkers, 1)
		go func(w *Worker) {
			defer close(done)
			defer atomic.AddInt32(&wp.activeWorkers, -1)
			w.Work(ctx, queue, active)
		}(worker)
	}

	wp.logger.Info("Worker pool started", "workers", len(wp.workers))
}

// Join waits for every worker against one shared deadline and returns the IDs
// of the workers that were still busy when it passed.
func (wp *WorkerPool) Join(deadline time.Time) []string {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	var abandoned []string
	expired := false
	for i, done := range wp.done {
		if !expired {
			select {
			case <-done:
				continue
			case <-timer.C:
				expired = true
			}
		}

		select {
		case <-done:
		default:
			abandoned = append(abandoned, wp.workers[i].GetID())
		}
	}
	return abandoned
}

// ActiveWorkers returns the number of worker goroutines still running
func (wp *WorkerPool) ActiveWorkers() int {
	return int(atomic.LoadInt32(&wp.activeWorkers))
}

// GetWorkerStats returns statistics for all workers
func (wp *WorkerPool) GetWorkerStats() []WorkerStats {
	stats := make([]WorkerStats, len(wp.workers))
	for i, worker := range wp.workers {
		stats[i] = worker.Stats()
	}
	return stats
}
