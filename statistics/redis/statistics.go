// Package redis records worker and job statistics in Redis.
//
// Keys, relative to the namespace:
//
//	workers                 set of registered worker ids
//	worker:<id>             JSON worker info
//	worker:<id>:job         JSON description of the job in progress
//	stat:processed[:<id>]   completed job counters
//	stat:failed[:<id>]      failed job counters
//	failed                  list of JSON failure records, newest first
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BranchIntl/ojsworker/core"
	"github.com/BranchIntl/ojsworker/errors"
	redisutil "github.com/BranchIntl/ojsworker/internal/redis"
	"github.com/BranchIntl/ojsworker/job"
	"github.com/gomodule/redigo/redis"
)

// Statistics is a Redis backed core.Statistics
type Statistics struct {
	mu        sync.RWMutex
	pool      *redis.Pool
	namespace string
	options   Options
}

// Failure is one entry of the failure list
type Failure struct {
	FailedAt time.Time `json:"failed_at"`
	JobID    string    `json:"job_id"`
	Type     string    `json:"type"`
	Queue    string    `json:"queue"`
	Attempt  int       `json:"attempt"`
	Args     []any     `json:"args,omitempty"`
	Error    string    `json:"error"`
	Worker   string    `json:"worker"`
	Duration float64   `json:"duration_seconds"`
}

// GlobalStats summarises all workers sharing a namespace
type GlobalStats struct {
	Processed     int64
	Failed        int64
	ActiveWorkers int64
}

// NewStatistics creates a new Redis statistics backend
func NewStatistics(options Options) *Statistics {
	return &Statistics{
		namespace: options.Namespace,
		options:   options,
	}
}

// Connect creates the pool and verifies the server answers
func (s *Statistics) Connect(ctx context.Context) error {
	pool := redisutil.NewPool(s.options.connection())
	if err := redisutil.Ping(pool, s.options.URI); err != nil {
		pool.Close()
		return err
	}

	s.mu.Lock()
	s.pool = pool
	s.mu.Unlock()
	return nil
}

// Close closes the connection pool
func (s *Statistics) Close() error {
	s.mu.Lock()
	pool := s.pool
	s.pool = nil
	s.mu.Unlock()

	if pool != nil {
		return pool.Close()
	}
	return nil
}

// Health pings the server
func (s *Statistics) Health() error {
	s.mu.RLock()
	pool := s.pool
	s.mu.RUnlock()

	if pool == nil {
		return errors.ErrNotConnected
	}
	return redisutil.Ping(pool, s.options.URI)
}

// Type returns the statistics backend type
func (s *Statistics) Type() string {
	return "redis"
}

// RegisterWorker adds the worker to the workers set and resets its counters
func (s *Statistics) RegisterWorker(ctx context.Context, worker core.WorkerInfo) error {
	info, err := json.Marshal(worker)
	if err != nil {
		return fmt.Errorf("failed to marshal worker info: %w", err)
	}

	return s.pipeline(ctx, func(conn redis.Conn) error {
		conn.Send("SADD", s.workersKey(), worker.ID)
		conn.Send("SET", s.workerKey(worker.ID), info)
		conn.Send("SET", s.processedKey(worker.ID), 0)
		return conn.Send("SET", s.failedKey(worker.ID), 0)
	})
}

// UnregisterWorker removes the worker and its keys
func (s *Statistics) UnregisterWorker(ctx context.Context, workerID string) error {
	return s.pipeline(ctx, func(conn redis.Conn) error {
		conn.Send("SREM", s.workersKey(), workerID)
		return conn.Send("DEL",
			s.workerKey(workerID),
			s.workerJobKey(workerID),
			s.processedKey(workerID),
			s.failedKey(workerID),
		)
	})
}

// RecordJobStarted stores the job the worker is running
func (s *Statistics) RecordJobStarted(ctx context.Context, j *job.Job, worker core.WorkerInfo) error {
	work, err := json.Marshal(map[string]any{
		"job_id":  j.ID,
		"type":    j.Type,
		"queue":   j.Queue,
		"attempt": j.Attempt,
		"run_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal work data: %w", err)
	}

	return s.pipeline(ctx, func(conn redis.Conn) error {
		return conn.Send("SET", s.workerJobKey(worker.ID), work)
	})
}

// RecordJobCompleted increments the processed counters
func (s *Statistics) RecordJobCompleted(ctx context.Context, j *job.Job, worker core.WorkerInfo, duration time.Duration) error {
	return s.pipeline(ctx, func(conn redis.Conn) error {
		conn.Send("INCR", s.processedKey(""))
		conn.Send("INCR", s.processedKey(worker.ID))
		return conn.Send("DEL", s.workerJobKey(worker.ID))
	})
}

// RecordJobFailed increments the failed counters and pushes a failure record
func (s *Statistics) RecordJobFailed(ctx context.Context, j *job.Job, worker core.WorkerInfo, jobErr error, duration time.Duration) error {
	record, err := json.Marshal(newFailure(j, worker.ID, jobErr, duration, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal failure: %w", err)
	}

	return s.pipeline(ctx, func(conn redis.Conn) error {
		conn.Send("LPUSH", s.failuresKey(), record)
		if s.options.MaxFailures > 0 {
			conn.Send("LTRIM", s.failuresKey(), 0, s.options.MaxFailures-1)
		}
		conn.Send("INCR", s.failedKey(""))
		conn.Send("INCR", s.failedKey(worker.ID))
		return conn.Send("DEL", s.workerJobKey(worker.ID))
	})
}

// GetWorkerStats returns the counters of a single worker
func (s *Statistics) GetWorkerStats(ctx context.Context, workerID string) (core.WorkerStats, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return core.WorkerStats{}, err
	}
	defer conn.Close()

	processed, err := redis.Int64(conn.Do("GET", s.processedKey(workerID)))
	if err != nil && err != redis.ErrNil {
		return core.WorkerStats{}, fmt.Errorf("failed to get processed count: %w", err)
	}
	failed, err := redis.Int64(conn.Do("GET", s.failedKey(workerID)))
	if err != nil && err != redis.ErrNil {
		return core.WorkerStats{}, fmt.Errorf("failed to get failed count: %w", err)
	}

	stats := core.WorkerStats{ID: workerID, Processed: processed, Failed: failed}

	if raw, err := redis.Bytes(conn.Do("GET", s.workerKey(workerID))); err == nil {
		var info core.WorkerInfo
		if json.Unmarshal(raw, &info) == nil {
			stats.StartTime = info.Started
		}
	}
	if busy, err := redis.Bool(conn.Do("EXISTS", s.workerJobKey(workerID))); err == nil && busy {
		stats.InProgress = 1
	}
	return stats, nil
}

// GetGlobalStats returns the namespace-wide counters
func (s *Statistics) GetGlobalStats(ctx context.Context) (GlobalStats, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return GlobalStats{}, err
	}
	defer conn.Close()

	var g GlobalStats
	if g.Processed, err = redis.Int64(conn.Do("GET", s.processedKey(""))); err != nil && err != redis.ErrNil {
		return GlobalStats{}, fmt.Errorf("failed to get global processed: %w", err)
	}
	if g.Failed, err = redis.Int64(conn.Do("GET", s.failedKey(""))); err != nil && err != redis.ErrNil {
		return GlobalStats{}, fmt.Errorf("failed to get global failed: %w", err)
	}
	if g.ActiveWorkers, err = redis.Int64(conn.Do("SCARD", s.workersKey())); err != nil {
		return GlobalStats{}, fmt.Errorf("failed to get active workers: %w", err)
	}
	return g, nil
}

// Failures returns up to limit failure records, newest first
func (s *Statistics) Failures(ctx context.Context, limit int) ([]Failure, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	raws, err := redis.ByteSlices(conn.Do("LRANGE", s.failuresKey(), 0, limit-1))
	if err != nil {
		return nil, fmt.Errorf("failed to read failures: %w", err)
	}

	failures := make([]Failure, 0, len(raws))
	for _, raw := range raws {
		var f Failure
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, errors.NewSerializationError("json", err)
		}
		failures = append(failures, f)
	}
	return failures, nil
}

func newFailure(j *job.Job, workerID string, err error, duration time.Duration, now time.Time) Failure {
	return Failure{
		FailedAt: now.UTC(),
		JobID:    j.ID,
		Type:     j.Type,
		Queue:    j.Queue,
		Attempt:  j.Attempt,
		Args:     j.Args,
		Error:    err.Error(),
		Worker:   workerID,
		Duration: duration.Seconds(),
	}
}

func (s *Statistics) conn(ctx context.Context) (redis.Conn, error) {
	s.mu.RLock()
	pool := s.pool
	s.mu.RUnlock()

	if pool == nil {
		return nil, errors.ErrNotConnected
	}
	conn, err := pool.GetContext(ctx)
	if err != nil {
		return nil, errors.NewConnectionError(redisutil.Redact(s.options.URI), err)
	}
	return conn, nil
}

// pipeline queues commands with fn and sends them as one MULTI/EXEC
func (s *Statistics) pipeline(ctx context.Context, fn func(conn redis.Conn) error) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Send("MULTI"); err != nil {
		return err
	}
	if err := fn(conn); err != nil {
		return err
	}
	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("redis transaction failed: %w", err)
	}
	return nil
}

// Key helpers

func (s *Statistics) workersKey() string {
	return s.namespace + "workers"
}

func (s *Statistics) workerKey(workerID string) string {
	return fmt.Sprintf("%sworker:%s", s.namespace, workerID)
}

func (s *Statistics) workerJobKey(workerID string) string {
	return fmt.Sprintf("%sworker:%s:job", s.namespace, workerID)
}

func (s *Statistics) processedKey(workerID string) string {
	if workerID == "" {
		return s.namespace + "stat:processed"
	}
	return fmt.Sprintf("%sstat:processed:%s", s.namespace, workerID)
}

func (s *Statistics) failedKey(workerID string) string {
	if workerID == "" {
		return s.namespace + "stat:failed"
	}
	return fmt.Sprintf("%sstat:failed:%s", s.namespace, workerID)
}

func (s *Statistics) failuresKey() string {
	return s.namespace + "failed"
}
