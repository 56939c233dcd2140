// Package noop provides a statistics backend that discards everything.
package noop

import (
	"context"
	"time"

	"github.com/BranchIntl/ojsworker/core"
	"github.com/BranchIntl/ojsworker/job"
)

// Statistics implements core.Statistics with no-op operations
type Statistics struct{}

var _ core.Statistics = (*Statistics)(nil)

// NewStatistics creates a new no-op statistics backend
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (n *Statistics) Connect(ctx context.Context) error { return nil }
func (n *Statistics) Close() error                      { return nil }
func (n *Statistics) Health() error                     { return nil }

// Type returns the statistics backend type
func (n *Statistics) Type() string {
	return "noop"
}

func (n *Statistics) RegisterWorker(ctx context.Context, worker core.WorkerInfo) error {
	return nil
}

func (n *Statistics) UnregisterWorker(ctx context.Context, workerID string) error {
	return nil
}

func (n *Statistics) RecordJobStarted(ctx context.Context, j *job.Job, worker core.WorkerInfo) error {
	return nil
}

func (n *Statistics) RecordJobCompleted(ctx context.Context, j *job.Job, worker core.WorkerInfo, duration time.Duration) error {
	return nil
}

func (n *Statistics) RecordJobFailed(ctx context.Context, j *job.Job, worker core.WorkerInfo, err error, duration time.Duration) error {
	return nil
}
