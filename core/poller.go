package core

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/BranchIntl/ojsworker/errors"
)

// Poller fetches jobs in batches sized to the free execution capacity
type Poller struct {
	transport   Transport
	queues      []string
	concurrency int
	batchSize   int
	interval    time.Duration
	state       func() State
	logger      *slog.Logger
}

// NewPoller creates a new poller. state reports the engine lifecycle state.
func NewPoller(
	transport Transport,
	queues []string,
	concurrency int,
	batchSize int,
	interval time.Duration,
	state func() State,
	logger *slog.Logger,
) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		transport:   transport,
		queues:      queues,
		concurrency: concurrency,
		batchSize:   batchSize,
		interval:    interval,
		state:       state,
		logger:      logger,
	}
}

// Run polls until the engine leaves the running and quiet states
func (p *Poller) Run(ctx context.Context, r *run) {
	p.logger.Info("Poller started", "queues", p.queues)
	defer p.logger.Info("Poller stopped")

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		st := p.state()
		if !st.accepting() {
			return
		}
		wait := p.interval
		if st == StateRunning {
			if _, err := p.poll(ctx, r); err != nil {
				wait = p.backoff(err)
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
		case <-r.wake:
		}
	}
}

// available returns how many more jobs may be claimed right now
func (p *Poller) available(r *run) int {
	return p.concurrency - r.queue.len() - r.active.len()
}

// backoff returns the pause after a failed fetch. A rate-limited server
// may ask for longer than the poll interval.
func (p *Poller) backoff(err error) time.Duration {
	var te *errors.TransportError
	if stderrors.As(err, &te) && te.Kind == errors.KindRateLimit && te.RetryAfter > p.interval {
		p.logger.Info("Rate limited, backing off", "retry_after", te.RetryAfter)
		return te.RetryAfter
	}
	return p.interval
}

// poll fetches at most min(available, batchSize) jobs and enqueues them.
// It returns the number of jobs enqueued.
func (p *Poller) poll(ctx context.Context, r *run) (int, error) {
	available := p.available(r)
	if available <= 0 {
		return 0, nil
	}

	n := min(available, p.batchSize)
	jobs, err := p.transport.Fetch(ctx, p.queues, n)
	if err != nil {
		p.logger.Error("Error fetching jobs",
			"error", err,
			"kind", errors.KindOf(err),
			"temporary", errors.IsTemporary(err))
		return 0, err
	}

	if len(jobs) > n {
		p.logger.Warn("Server returned more jobs than requested, dropping the excess",
			"requested", n, "received", len(jobs))
		jobs = jobs[:n]
	}

	count := 0
	for _, j := range jobs {
		if j == nil {
			continue
		}
		r.queue.push(j)
		count++
	}

	if count > 0 {
		p.logger.Debug("Fetched jobs", "count", count)
	}
	return count, nil
}
