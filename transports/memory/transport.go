// Package memory provides an in-process transport. It is constructed and
// injected explicitly like any other transport and records every call,
// which makes it suitable for tests and local development.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
)

// Ack records a successful settlement
type Ack struct {
	JobID  string
	Result any
}

// Nack records a failed settlement
type Nack struct {
	JobID string
	Error *job.Error
}

// Transport keeps pending jobs in FIFO order per queue. It owns its job
// records; callers and the engine only ever see copies.
type Transport struct {
	mu         sync.Mutex
	jobs       map[string]*job.Job
	queues     map[string][]*job.Job
	leased     map[string]*job.Job
	fetches    []int
	acks       []Ack
	nacks      []Nack
	heartbeats [][]string
	errs       map[string]error
	closed     bool
}

// NewTransport creates an empty in-memory transport
func NewTransport() *Transport {
	return &Transport{
		jobs:   make(map[string]*job.Job),
		queues: make(map[string][]*job.Job),
		leased: make(map[string]*job.Job),
		errs:   make(map[string]error),
	}
}

// Push enqueues a copy of j, assigning an ID and the default queue when
// missing, and returns j with those defaults filled in
func (t *Transport) Push(j *job.Job) *job.Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Queue == "" {
		j.Queue = "default"
	}
	j.State = job.StateAvailable

	stored := *j
	t.jobs[stored.ID] = &stored
	t.queues[stored.Queue] = append(t.queues[stored.Queue], &stored)
	return j
}

// Lookup returns a copy of the server-side record of a job
func (t *Transport) Lookup(jobID string) (job.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[jobID]
	if !ok {
		return job.Job{}, false
	}
	return *j, true
}

// Enqueue is a convenience wrapper around Push
func (t *Transport) Enqueue(jobType, queue string, args ...any) *job.Job {
	return t.Push(&job.Job{Type: jobType, Queue: queue, Args: args})
}

// SetError makes every later call of op ("fetch", "ack", "nack" or
// "heartbeat") fail with err; a nil err clears it
func (t *Transport) SetError(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		delete(t.errs, op)
		return
	}
	t.errs[op] = err
}

// Fetch leases up to batchSize jobs, visiting queues in the given order.
// The returned jobs are copies that later calls never modify.
func (t *Transport) Fetch(ctx context.Context, queues []string, batchSize int) ([]*job.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fetches = append(t.fetches, batchSize)
	if err := t.errs["fetch"]; err != nil {
		return nil, err
	}

	var jobs []*job.Job
	for _, q := range queues {
		for len(jobs) < batchSize && len(t.queues[q]) > 0 {
			j := t.queues[q][0]
			t.queues[q] = t.queues[q][1:]

			j.State = job.StateActive
			j.Attempt++
			t.leased[j.ID] = j

			dispatched := *j
			jobs = append(jobs, &dispatched)
		}
	}
	return jobs, nil
}

// Ack completes a leased job
func (t *Transport) Ack(ctx context.Context, jobID string, result any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.acks = append(t.acks, Ack{JobID: jobID, Result: result})
	if err := t.errs["ack"]; err != nil {
		return err
	}
	return t.settle("ack", jobID, job.StateCompleted)
}

// Nack fails a leased job. The job is not redelivered.
func (t *Transport) Nack(ctx context.Context, jobID string, jobErr *job.Error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nacks = append(t.nacks, Nack{JobID: jobID, Error: jobErr})
	if err := t.errs["nack"]; err != nil {
		return err
	}
	return t.settle("nack", jobID, job.StateDiscarded)
}

// Heartbeat records the batch of job IDs
func (t *Transport) Heartbeat(ctx context.Context, jobIDs []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.heartbeats = append(t.heartbeats, append([]string(nil), jobIDs...))
	return t.errs["heartbeat"]
}

// settle expects the caller to hold the lock
func (t *Transport) settle(op, jobID string, state job.State) error {
	j, ok := t.leased[jobID]
	if !ok {
		return &errors.TransportError{Op: op, Kind: errors.KindClient, StatusCode: 404, Code: "not_found", Err: errors.ErrJobNotFound}
	}
	j.State = state
	delete(t.leased, jobID)
	return nil
}

// Close marks the transport closed; it can be reused after another Start
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Connect reopens the transport
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = false
	return nil
}

// Health always succeeds while the transport is open
func (t *Transport) Health() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.ErrNotConnected
	}
	return nil
}

// Pending returns the number of jobs waiting on queue
func (t *Transport) Pending(queue string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queues[queue])
}

// Leased returns the number of fetched but unsettled jobs
func (t *Transport) Leased() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.leased)
}

// Fetches returns the batch size of every fetch call
func (t *Transport) Fetches() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.fetches...)
}

// Acks returns all recorded acks
func (t *Transport) Acks() []Ack {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Ack(nil), t.acks...)
}

// Nacks returns all recorded nacks
func (t *Transport) Nacks() []Nack {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Nack(nil), t.nacks...)
}

// Heartbeats returns every recorded heartbeat batch
func (t *Transport) Heartbeats() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]string(nil), t.heartbeats...)
}
