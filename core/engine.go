package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
	"github.com/BranchIntl/ojsworker/middleware"
)

// Engine is the main orchestration engine. It owns a poll loop, a pool of
// execution units and a heartbeat loop for the duration of each Start call.
type Engine struct {
	id        string
	transport Transport
	stats     Statistics
	registry  Registry
	chain     *middleware.Chain
	config    *Config
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	run        *run
	workerPool *WorkerPool
}

// NewEngine creates a new engine with dependency injection
func NewEngine(
	transport Transport,
	stats Statistics,
	registry Registry,
	options ...EngineOption,
) *Engine {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}

	return &Engine{
		id:        uuid.NewString()[:8],
		transport: transport,
		stats:     stats,
		registry:  registry,
		chain:     middleware.NewChain(),
		config:    config,
		logger:    config.Logger,
	}
}

// ID returns the engine's identifier, used as the prefix of worker IDs
func (e *Engine) ID() string {
	return e.id
}

// Logger returns the engine's structured logger
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start connects, processes jobs and blocks until the engine has shut down.
// Shutdown is triggered by Stop or by cancelling ctx. Handlers receive a
// context that is only cancelled when the shutdown deadline passes.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return errors.ErrEngineRunning
	}
	r := newRun(ctx, e.config.Concurrency)
	e.state = StateRunning
	e.run = r
	e.mu.Unlock()

	if err := e.connect(ctx); err != nil {
		r.cancel()
		e.reset()
		return err
	}

	pool := NewWorkerPool(
		e.id,
		e.config.Concurrency,
		e.config.Queues,
		e.registry,
		e.chain,
		e.stats,
		e.transport,
		e.logger,
	)
	e.mu.Lock()
	e.workerPool = pool
	e.mu.Unlock()
	pool.Start(r.ctx, r.queue, r.active)

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		NewHeartbeater(e.transport, e.config.HeartbeatInterval, e.State, e.logger).Run(r.ctx, r)
	}()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			e.logger.Info("Context cancelled, shutting down")
			e.Stop()
		case <-watchDone:
		}
	}()

	e.logger.Info("Engine started",
		"id", e.id,
		"concurrency", e.config.Concurrency,
		"queues", e.config.Queues)

	NewPoller(
		e.transport,
		e.config.Queues,
		e.config.Concurrency,
		e.config.BatchSize,
		e.config.PollInterval,
		e.State,
		e.logger,
	).Run(ctx, r)

	e.shutdown(r, pool, heartbeatDone)
	return nil
}

// Run installs signal handlers and then calls Start
func (e *Engine) Run(ctx context.Context) error {
	stop := e.handleSignals()
	defer stop()

	return e.Start(ctx)
}

// Stop requests shutdown and returns immediately. It is a no-op unless the
// engine is running or quiet.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.accepting() {
		return
	}
	e.state = StateTerminating
	e.run.interrupt()
	e.logger.Info("Engine stopping")
}

// Quiet stops fetching new jobs while in-flight jobs finish. It is a no-op
// unless the engine is running.
func (e *Engine) Quiet() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return
	}
	e.state = StateQuiet
	e.logger.Info("Engine quiet, no new jobs will be fetched")
}

// shutdown drains the execution units of r against one shared deadline
func (e *Engine) shutdown(r *run, pool *WorkerPool, heartbeatDone <-chan struct{}) {
	e.logger.Info("Engine shutting down", "timeout", e.config.ShutdownTimeout)

	// Jobs still queued run before the sentinels
	for i := 0; i < e.config.Concurrency; i++ {
		r.queue.push(nil)
	}

	deadline := time.Now().Add(e.config.ShutdownTimeout)
	if abandoned := pool.Join(deadline); len(abandoned) > 0 {
		e.logger.Warn("Engine shutdown timeout exceeded, abandoning workers",
			"workers", abandoned,
			"active_jobs", r.active.ids())
	} else {
		e.logger.Info("All workers stopped")
	}

	close(r.done)
	select {
	case <-heartbeatDone:
	case <-time.After(heartbeatGrace):
		e.logger.Warn("Heartbeat loop did not stop in time")
	}

	// Abandoned handlers observe this as cancellation
	r.cancel()

	e.disconnect()
	e.reset()
	e.logger.Info("Engine stopped")
}

func (e *Engine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateStopped
	e.run = nil
}

func (e *Engine) validate() error {
	switch {
	case e.transport == nil:
		return fmt.Errorf("%w: transport is required", errors.ErrInvalidConfig)
	case e.stats == nil:
		return fmt.Errorf("%w: statistics is required", errors.ErrInvalidConfig)
	case e.registry == nil:
		return fmt.Errorf("%w: registry is required", errors.ErrInvalidConfig)
	}
	return e.config.validate()
}

// connect opens the transport, if it needs it, and the statistics backend
func (e *Engine) connect(ctx context.Context) error {
	if c, ok := e.transport.(interface{ Connect(context.Context) error }); ok {
		if err := c.Connect(ctx); err != nil {
			return errors.NewConnectionError("",
				fmt.Errorf("failed to connect transport: %w", err))
		}
	}

	if err := e.stats.Connect(ctx); err != nil {
		e.closeTransport()
		return errors.NewConnectionError("",
			fmt.Errorf("failed to connect statistics: %w", err))
	}
	return nil
}

func (e *Engine) disconnect() {
	e.closeTransport()

	if err := e.stats.Close(); err != nil {
		e.logger.Error("Error closing statistics", "error", err)
	}
}

func (e *Engine) closeTransport() {
	if c, ok := e.transport.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			e.logger.Error("Error closing transport", "error", err)
		}
	}
}

// Health returns the current health status
func (e *Engine) Health() HealthStatus {
	e.mu.Lock()
	state, r, pool := e.state, e.run, e.workerPool
	e.mu.Unlock()

	var transportHealth error
	if h, ok := e.transport.(interface{ Health() error }); ok {
		transportHealth = h.Health()
	}
	statsHealth := e.stats.Health()

	status := HealthStatus{
		Healthy:         transportHealth == nil && statsHealth == nil,
		State:           state,
		TransportHealth: transportHealth,
		StatsHealth:     statsHealth,
		LastCheck:       time.Now(),
	}
	if r != nil {
		status.ActiveJobs = r.active.len()
		status.QueuedJobs = r.queue.len()
	}
	if pool != nil {
		status.ActiveWorkers = pool.ActiveWorkers()
		status.Workers = pool.GetWorkerStats()
	}
	return status
}

// Register adds a handler for a job type
func (e *Engine) Register(jobType string, handler job.Handler) error {
	return e.registry.Register(jobType, handler)
}

// RegisterFunc adds a handler function for a job type
func (e *Engine) RegisterFunc(jobType string, fn func(*job.Context) (any, error)) error {
	if fn == nil {
		return errors.ErrNilHandler
	}
	return e.registry.Register(jobType, job.HandlerFunc(fn))
}

// Use appends a named middleware as the innermost layer
func (e *Engine) Use(name string, mw middleware.Middleware) error {
	return e.chain.Add(name, mw)
}

// Middleware returns the engine's chain for finer-grained edits
func (e *Engine) Middleware() *middleware.Chain {
	return e.chain
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() Config {
	cfg := *e.config
	cfg.Queues = append([]string(nil), e.config.Queues...)
	return cfg
}
