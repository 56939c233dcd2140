package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BranchIntl/ojsworker/job"
	"github.com/BranchIntl/ojsworker/middleware"
	"github.com/stretchr/testify/require"
)

// TestSetup provides common test dependencies
type TestSetup struct {
	Transport *MockTransport
	Stats     *MockStatistics
	Registry  *MockRegistry
	Logger    *slog.Logger
}

// NewTestSetup creates a standard test setup with all mocks
func NewTestSetup() *TestSetup {
	return &TestSetup{
		Transport: NewMockTransport(),
		Stats:     NewMockStatistics(),
		Registry:  NewMockRegistry(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// RegisterFunc registers a handler function on the mock registry
func (s *TestSetup) RegisterFunc(jobType string, fn func(*job.Context) (any, error)) {
	_ = s.Registry.Register(jobType, job.HandlerFunc(fn))
}

// NewTestJob creates a job with the given ID and type on the default queue
func NewTestJob(id, jobType string, args ...any) *job.Job {
	return &job.Job{
		ID:    id,
		Type:  jobType,
		Queue: "default",
		Args:  args,
		State: job.StateActive,
	}
}

// NewTestJobs creates n jobs of the given type with IDs job-0..job-(n-1)
func NewTestJobs(n int, jobType string) []*job.Job {
	jobs := make([]*job.Job, n)
	for i := range jobs {
		jobs[i] = NewTestJob(fmt.Sprintf("job-%d", i), jobType)
	}
	return jobs
}

// EngineBuilder helps create engines for testing
type EngineBuilder struct {
	setup   *TestSetup
	options []EngineOption
}

// NewEngine starts building a test engine with fast intervals
func (s *TestSetup) NewEngine() *EngineBuilder {
	return &EngineBuilder{
		setup: s,
		options: []EngineOption{
			WithLogger(s.Logger),
			WithPollInterval(10 * time.Millisecond),
			WithHeartbeatInterval(20 * time.Millisecond),
			WithShutdownTimeout(time.Second),
		},
	}
}

// WithOptions adds engine options
func (b *EngineBuilder) WithOptions(options ...EngineOption) *EngineBuilder {
	b.options = append(b.options, options...)
	return b
}

// Build creates the engine
func (b *EngineBuilder) Build() *Engine {
	return NewEngine(b.setup.Transport, b.setup.Stats, b.setup.Registry, b.options...)
}

// NewWorker creates a worker wired to the setup's mocks
func (s *TestSetup) NewWorker(chain *middleware.Chain) *Worker {
	return NewWorker("test-worker", []string{"default"}, s.Registry, chain, s.Stats, s.Transport, s.Logger)
}

// StartAsync runs engine.Start on its own goroutine and waits until the
// engine reports running
func StartAsync(t *testing.T, engine *Engine, ctx context.Context) <-chan error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- engine.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return engine.State() == StateRunning
	}, time.Second, time.Millisecond)
	return errCh
}

// WaitForStart waits for Start to return and fails the test on timeout
func WaitForStart(t *testing.T, errCh <-chan error, timeout time.Duration) error {
	t.Helper()

	select {
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		t.Fatal("Engine.Start did not return within timeout")
		return nil
	}
}

// Eventually polls cond for up to two seconds
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
