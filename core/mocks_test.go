package core

import (
	"context"
	"sync"
	"time"

	"github.com/BranchIntl/ojsworker/job"
)

// Mock implementations for testing

type fetchCall struct {
	Queues    []string
	BatchSize int
}

type ackCall struct {
	JobID  string
	Result any
}

type nackCall struct {
	JobID string
	Err   *job.Error
}

// MockTransport implements Transport plus the optional Connect, Close and
// Health methods
type MockTransport struct {
	mu             sync.Mutex
	pending        []*job.Job
	extra          int
	fetchCalls     []fetchCall
	acks           []ackCall
	nacks          []nackCall
	heartbeats     [][]string
	fetchError     error
	ackError       error
	nackError      error
	heartbeatError error
	connectError   error
	healthError    error
	connected      bool
	closeCount     int
}

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (m *MockTransport) Fetch(ctx context.Context, queues []string, batchSize int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetchCalls = append(m.fetchCalls, fetchCall{Queues: queues, BatchSize: batchSize})
	if m.fetchError != nil {
		return nil, m.fetchError
	}

	n := min(batchSize+m.extra, len(m.pending))
	jobs := m.pending[:n]
	m.pending = m.pending[n:]
	return jobs, nil
}

func (m *MockTransport) Ack(ctx context.Context, jobID string, result any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.acks = append(m.acks, ackCall{JobID: jobID, Result: result})
	return m.ackError
}

func (m *MockTransport) Nack(ctx context.Context, jobID string, jobErr *job.Error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nacks = append(m.nacks, nackCall{JobID: jobID, Err: jobErr})
	return m.nackError
}

func (m *MockTransport) Heartbeat(ctx context.Context, jobIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.heartbeats = append(m.heartbeats, append([]string(nil), jobIDs...))
	return m.heartbeatError
}

func (m *MockTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectError != nil {
		return m.connectError
	}
	m.connected = true
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	m.closeCount++
	return nil
}

func (m *MockTransport) Health() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthError
}

// Test helper methods

func (m *MockTransport) AddJobs(jobs ...*job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, jobs...)
}

// SetExtra makes Fetch return up to n more jobs than requested
func (m *MockTransport) SetExtra(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extra = n
}

func (m *MockTransport) SetFetchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchError = err
}

func (m *MockTransport) SetAckError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ackError = err
}

func (m *MockTransport) SetHeartbeatError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeatError = err
}

func (m *MockTransport) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectError = err
}

func (m *MockTransport) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthError = err
}

func (m *MockTransport) GetFetchCalls() []fetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]fetchCall(nil), m.fetchCalls...)
}

func (m *MockTransport) GetAcks() []ackCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ackCall(nil), m.acks...)
}

func (m *MockTransport) GetNacks() []nackCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]nackCall(nil), m.nacks...)
}

func (m *MockTransport) GetHeartbeats() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.heartbeats...)
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// MockStatistics implements the Statistics interface for testing
type MockStatistics struct {
	mu            sync.RWMutex
	connectError  error
	healthError   error
	connected     bool
	workers       map[string]WorkerInfo
	jobsStarted   []*job.Job
	jobsCompleted []*job.Job
	jobsFailed    []*job.Job
}

func NewMockStatistics() *MockStatistics {
	return &MockStatistics{
		workers: make(map[string]WorkerInfo),
	}
}

func (m *MockStatistics) RegisterWorker(ctx context.Context, worker WorkerInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[worker.ID] = worker
	return nil
}

func (m *MockStatistics) UnregisterWorker(ctx context.Context, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workers, workerID)
	return nil
}

func (m *MockStatistics) RecordJobStarted(ctx context.Context, j *job.Job, worker WorkerInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsStarted = append(m.jobsStarted, j)
	return nil
}

func (m *MockStatistics) RecordJobCompleted(ctx context.Context, j *job.Job, worker WorkerInfo, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsCompleted = append(m.jobsCompleted, j)
	return nil
}

func (m *MockStatistics) RecordJobFailed(ctx context.Context, j *job.Job, worker WorkerInfo, err error, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsFailed = append(m.jobsFailed, j)
	return nil
}

func (m *MockStatistics) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectError != nil {
		return m.connectError
	}
	m.connected = true
	return nil
}

func (m *MockStatistics) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockStatistics) Health() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthError
}

func (m *MockStatistics) Type() string {
	return "mock"
}

// Test helper methods

func (m *MockStatistics) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectError = err
}

func (m *MockStatistics) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthError = err
}

func (m *MockStatistics) GetJobsStarted() []*job.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*job.Job(nil), m.jobsStarted...)
}

func (m *MockStatistics) GetJobsCompleted() []*job.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*job.Job(nil), m.jobsCompleted...)
}

func (m *MockStatistics) GetJobsFailed() []*job.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*job.Job(nil), m.jobsFailed...)
}

func (m *MockStatistics) WorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// MockRegistry implements the Registry interface for testing
type MockRegistry struct {
	mu       sync.RWMutex
	handlers map[string]job.Handler
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		handlers: make(map[string]job.Handler),
	}
}

func (m *MockRegistry) Register(jobType string, handler job.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[jobType] = handler
	return nil
}

func (m *MockRegistry) Get(jobType string) (job.Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[jobType]
	return h, ok
}
