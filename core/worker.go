package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
	"github.com/BranchIntl/ojsworker/middleware"
)

// Worker is a single execution unit
type Worker struct {
	id        string
	hostname  string
	pid       int
	queues    []string
	registry  Registry
	chain     *middleware.Chain
	stats     Statistics
	transport Transport
	logger    *slog.Logger

	// Statistics
	processed  int64
	failed     int64
	inProgress int64
	lastJob    int64
	startTime  time.Time
}

// NewWorker creates a new worker
func NewWorker(
	id string,
	queues []string,
	registry Registry,
	chain *middleware.Chain,
	stats Statistics,
	transport Transport,
	logger *slog.Logger,
) *Worker {
	hostname, _ := os.Hostname()
	if chain == nil {
		chain = middleware.NewChain()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		id:        id,
		hostname:  hostname,
		pid:       os.Getpid(),
		queues:    queues,
		registry:  registry,
		chain:     chain,
		stats:     stats,
		transport: transport,
		logger:    logger,
		startTime: time.Now(),
	}
}

// GetID returns the worker's unique ID
func (w *Worker) GetID() string {
	return fmt.Sprintf("%s:%d-%s", w.hostname, w.pid, w.id)
}

// GetQueues returns the queues this worker reports. Jobs arrive through the
// work queue, never directly from these.
func (w *Worker) GetQueues() []string {
	return w.queues
}

// Stats returns a snapshot of this worker's counters
func (w *Worker) Stats() WorkerStats {
	stats := WorkerStats{
		ID:         w.GetID(),
		Processed:  atomic.LoadInt64(&w.processed),
		Failed:     atomic.LoadInt64(&w.failed),
		InProgress: atomic.LoadInt64(&w.inProgress),
		StartTime:  w.startTime,
	}
	if last := atomic.LoadInt64(&w.lastJob); last != 0 {
		stats.LastJob = time.Unix(0, last)
	}
	return stats
}

func (w *Worker) info() WorkerInfo {
	return WorkerInfo{
		ID:       w.GetID(),
		Hostname: w.hostname,
		Pid:      w.pid,
		Queues:   w.GetQueues(),
		Started:  w.startTime,
	}
}

// Work pops jobs until it receives the exit sentinel
func (w *Worker) Work(ctx context.Context, queue *workQueue, active *activeSet) {
	rpcCtx := context.WithoutCancel(ctx)

	if err := w.stats.RegisterWorker(rpcCtx, w.info()); err != nil {
		w.logger.Error("Failed to register worker", "error", err)
	}

	defer func() {
		if err := w.stats.UnregisterWorker(rpcCtx, w.GetID()); err != nil {
			w.logger.Error("Failed to unregister worker", "error", err)
		}
	}()

	w.logger.Debug("Worker started", "id", w.GetID())

	for {
		j := queue.pop()
		if j == nil {
			w.logger.Debug("Worker stopping", "id", w.GetID())
			return
		}
		w.processJob(ctx, j, active, queue.release)
	}
}

// processJob executes one job and settles it with exactly one ack or nack.
// claimed, if set, runs once the job is in the active set.
func (w *Worker) processJob(ctx context.Context, j *job.Job, active *activeSet, claimed func()) {
	active.add(j.ID, w.GetID())
	defer active.remove(j.ID)
	if claimed != nil {
		claimed()
	}

	atomic.AddInt64(&w.inProgress, 1)
	defer atomic.AddInt64(&w.inProgress, -1)
	atomic.StoreInt64(&w.lastJob, time.Now().UnixNano())

	// Settlement must reach the server even after the run context is cancelled
	rpcCtx := context.WithoutCancel(ctx)
	startTime := time.Now()
	workerInfo := w.info()

	if err := w.stats.RecordJobStarted(rpcCtx, j, workerInfo); err != nil {
		w.logger.Error("Failed to record job start", "error", err)
	}

	handler, ok := w.registry.Get(j.Type)
	if !ok {
		w.handleJobError(rpcCtx, j, workerInfo, errors.HandlerNotFound(j.Type), startTime)
		return
	}

	jc := job.NewContext(ctx, j, w.heartbeat)
	result, err := w.executeJob(jc, handler)
	if err != nil {
		w.handleJobError(rpcCtx, j, workerInfo, errors.Classify(err), startTime)
		return
	}
	w.handleJobSuccess(rpcCtx, j, workerInfo, result, startTime)
}

// executeJob runs the handler through the middleware chain with panic recovery
func (w *Worker) executeJob(jc *job.Context, handler job.Handler) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &errors.HandlerError{
				JobType:   jc.Job.Type,
				Backtrace: middleware.Backtrace(string(debug.Stack())),
				Err:       fmt.Errorf("panic: %v", r),
			}
		}
	}()

	return w.chain.Invoke(jc, handler)
}

func (w *Worker) heartbeat(ctx context.Context, jobID string) error {
	return w.transport.Heartbeat(ctx, []string{jobID})
}

// handleJobSuccess acks the job and records completion
func (w *Worker) handleJobSuccess(ctx context.Context, j *job.Job, worker WorkerInfo, result any, startTime time.Time) {
	duration := time.Since(startTime)

	atomic.AddInt64(&w.processed, 1)

	if err := w.transport.Ack(ctx, j.ID, result); err != nil {
		w.logger.Error("Failed to ack job", "job_id", j.ID, "error", err, "kind", errors.KindOf(err))
	}

	if err := w.stats.RecordJobCompleted(ctx, j, worker, duration); err != nil {
		w.logger.Error("Failed to record job completion", "error", err)
	}

	w.logger.Debug("Job completed", "job_id", j.ID, "type", j.Type, "duration", duration)
}

// handleJobError nacks the job and records the failure
func (w *Worker) handleJobError(ctx context.Context, j *job.Job, worker WorkerInfo, jobErr *job.Error, startTime time.Time) {
	duration := time.Since(startTime)

	atomic.AddInt64(&w.processed, 1)
	atomic.AddInt64(&w.failed, 1)

	if err := w.transport.Nack(ctx, j.ID, jobErr); err != nil {
		w.logger.Error("Failed to nack job", "job_id", j.ID, "error", err, "kind", errors.KindOf(err))
	}

	if err := w.stats.RecordJobFailed(ctx, j, worker, jobErr, duration); err != nil {
		w.logger.Error("Failed to record job failure", "error", err)
	}

	w.logger.Warn("Job failed", "job_id", j.ID, "type", j.Type, "error_type", jobErr.Type, "error", jobErr.Message)
}
