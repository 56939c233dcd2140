package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BranchIntl/ojsworker/errors"
)

// heartbeatGrace bounds how long shutdown waits for the heartbeat unit
const heartbeatGrace = time.Second

// Config holds engine configuration
type Config struct {
	Concurrency       int
	Queues            []string
	BatchSize         int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration
	Logger            *slog.Logger
}

// EngineOption is a function that modifies engine configuration
type EngineOption func(*Config)

// defaultConfig returns default configuration
func defaultConfig() *Config {
	return &Config{
		Concurrency:       10,
		Queues:            []string{"default"},
		BatchSize:         10,
		PollInterval:      time.Second,
		HeartbeatInterval: 5 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		Logger:            slog.Default(),
	}
}

// validate reports programmer errors in the configuration
func (c *Config) validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", errors.ErrInvalidConfig, c.Concurrency)
	case len(c.Queues) == 0:
		return errors.ErrNoQueues
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size must be at least 1, got %d", errors.ErrInvalidConfig, c.BatchSize)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive", errors.ErrInvalidConfig)
	case c.HeartbeatInterval <= 0:
		return fmt.Errorf("%w: heartbeat interval must be positive", errors.ErrInvalidConfig)
	case c.ShutdownTimeout < 0:
		return fmt.Errorf("%w: shutdown timeout cannot be negative", errors.ErrInvalidConfig)
	}
	return nil
}

// WithConcurrency sets the number of concurrent execution units
func WithConcurrency(n int) EngineOption {
	return func(c *Config) {
		c.Concurrency = n
	}
}

// WithQueues sets the queues to fetch from, in priority order
func WithQueues(queues []string) EngineOption {
	return func(c *Config) {
		c.Queues = queues
	}
}

// WithBatchSize caps the number of jobs requested per fetch
func WithBatchSize(n int) EngineOption {
	return func(c *Config) {
		c.BatchSize = n
	}
}

// WithPollInterval sets the pause between fetches
func WithPollInterval(d time.Duration) EngineOption {
	return func(c *Config) {
		c.PollInterval = d
	}
}

// WithHeartbeatInterval sets how often leases of active jobs are extended
func WithHeartbeatInterval(d time.Duration) EngineOption {
	return func(c *Config) {
		c.HeartbeatInterval = d
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout
func WithShutdownTimeout(d time.Duration) EngineOption {
	return func(c *Config) {
		c.ShutdownTimeout = d
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) EngineOption {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}
