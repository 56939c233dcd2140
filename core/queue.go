package core

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/BranchIntl/ojsworker/job"
)

// workQueue hands fetched jobs to execution units in FIFO order. A nil job
// is the exit sentinel. A job stays counted from push until its unit has
// registered it as active, so capacity is never overstated during handoff.
type workQueue struct {
	ch        chan *job.Job
	pending   atomic.Int64
	sentinels atomic.Int64
}

// newWorkQueue sizes the buffer so that concurrency jobs plus concurrency
// sentinels never block the producer.
func newWorkQueue(concurrency int) *workQueue {
	return &workQueue{ch: make(chan *job.Job, 2*concurrency)}
}

func (q *workQueue) push(j *job.Job) {
	if j == nil {
		q.sentinels.Add(1)
	} else {
		q.pending.Add(1)
	}
	q.ch <- j
}

// pop blocks until a job or sentinel is available. The caller must call
// release once a popped job is in the active set.
func (q *workQueue) pop() *job.Job {
	j := <-q.ch
	if j == nil {
		q.sentinels.Add(-1)
	}
	return j
}

// release ends the handoff of one popped job
func (q *workQueue) release() {
	q.pending.Add(-1)
}

// len counts queued sentinels plus jobs not yet released
func (q *workQueue) len() int {
	return int(q.pending.Load() + q.sentinels.Load())
}

// activeSet maps the IDs of jobs being executed to the executing worker
type activeSet struct {
	mu   sync.Mutex
	jobs map[string]string
}

func newActiveSet() *activeSet {
	return &activeSet{jobs: make(map[string]string)}
}

func (s *activeSet) add(jobID, workerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID] = workerID
}

func (s *activeSet) remove(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

func (s *activeSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// ids returns a sorted snapshot of the active job IDs
func (s *activeSet) ids() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// run holds the state of a single Start call. Units spawned by an abandoned
// run keep their own run and never touch a later one.
type run struct {
	// ctx is handed to handlers; it is cancelled once the shutdown
	// deadline passes with units still busy
	ctx    context.Context
	cancel context.CancelFunc

	queue  *workQueue
	active *activeSet

	// wake is closed by Stop to interrupt the poll sleep
	wake     chan struct{}
	wakeOnce sync.Once

	// done is closed after the execution units have been joined
	done chan struct{}
}

func newRun(parent context.Context, concurrency int) *run {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &run{
		ctx:    ctx,
		cancel: cancel,
		queue:  newWorkQueue(concurrency),
		active: newActiveSet(),
		wake:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (r *run) interrupt() {
	r.wakeOnce.Do(func() { close(r.wake) })
}
