package core

import (
	"context"
	"time"

	"github.com/BranchIntl/ojsworker/job"
)

// Transport is the client side of the four worker RPCs. Implementations may
// additionally provide Connect(ctx) error, Close() error and Health() error;
// the engine calls them when present.
type Transport interface {
	// Fetch claims up to batchSize jobs from the given queues
	Fetch(ctx context.Context, queues []string, batchSize int) ([]*job.Job, error)

	// Ack reports success; a nil result is omitted from the request
	Ack(ctx context.Context, jobID string, result any) error

	// Nack reports failure with a structured error
	Nack(ctx context.Context, jobID string, jobErr *job.Error) error

	// Heartbeat extends the leases of the given active jobs
	Heartbeat(ctx context.Context, jobIDs []string) error
}

// Statistics interface defines what core needs from a statistics backend
type Statistics interface {
	// Worker lifecycle
	RegisterWorker(ctx context.Context, worker WorkerInfo) error
	UnregisterWorker(ctx context.Context, workerID string) error

	// Job metrics
	RecordJobStarted(ctx context.Context, j *job.Job, worker WorkerInfo) error
	RecordJobCompleted(ctx context.Context, j *job.Job, worker WorkerInfo, duration time.Duration) error
	RecordJobFailed(ctx context.Context, j *job.Job, worker WorkerInfo, err error, duration time.Duration) error

	// Health and connection
	Connect(ctx context.Context) error
	Close() error
	Health() error
	Type() string
}

// Registry interface defines what core needs from a handler registry
type Registry interface {
	// Register adds a handler for a job type
	Register(jobType string, handler job.Handler) error

	// Get retrieves a handler by job type
	Get(jobType string) (job.Handler, bool)
}

// Supporting types used by the interfaces

// WorkerInfo describes an execution unit
type WorkerInfo struct {
	ID       string
	Hostname string
	Pid      int
	Queues   []string
	Started  time.Time
}

// WorkerStats contains statistics for an execution unit
type WorkerStats struct {
	ID         string
	Processed  int64
	Failed     int64
	InProgress int64
	StartTime  time.Time
	LastJob    time.Time
}

// HealthStatus represents the health of the engine
type HealthStatus struct {
	Healthy         bool          `json:"healthy"`
	State           State         `json:"state"`
	TransportHealth error         `json:"-"`
	StatsHealth     error         `json:"-"`
	ActiveJobs      int           `json:"active_jobs"`
	QueuedJobs      int           `json:"queued_jobs"`
	ActiveWorkers   int           `json:"active_workers"`
	Workers         []WorkerStats `json:"workers,omitempty"`
	LastCheck       time.Time     `json:"last_check"`
}
