package engines

import (
	"context"

	"github.com/BranchIntl/ojsworker/core"
	"github.com/BranchIntl/ojsworker/registry"
	"github.com/BranchIntl/ojsworker/statistics/noop"
	"github.com/BranchIntl/ojsworker/transports/redis"
)

// RedisEngine provides a pre-configured engine that consumes OJS job
// envelopes from Redis lists with leases. Statistics default to NoOp.
type RedisEngine struct {
	*core.Engine
	transport *redis.Transport
	stats     core.Statistics
	registry  *registry.Registry
}

// RedisOptions contains configuration for RedisEngine.
type RedisOptions struct {
	// RedisURI is the Redis connection URI (default: redis://localhost:6379/)
	RedisURI string

	// RedisOptions provides detailed Redis configuration
	RedisOptions redis.Options

	// Statistics backend (optional, defaults to NoOp)
	Statistics core.Statistics

	// EngineOptions contains core engine configuration options
	EngineOptions []core.EngineOption
}

// DefaultRedisOptions returns a working configuration for local development.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		RedisURI:     "redis://localhost:6379/",
		RedisOptions: redis.DefaultOptions(),
		EngineOptions: []core.EngineOption{
			core.WithConcurrency(25),
			core.WithQueues([]string{"default"}),
		},
	}
}

// NewRedisEngine creates a new pre-configured Redis engine. The lease
// timeout should comfortably exceed the heartbeat interval.
func NewRedisEngine(options RedisOptions) *RedisEngine {
	transportOpts := options.RedisOptions
	if options.RedisURI != "" {
		transportOpts.URI = options.RedisURI
	}
	transport := redis.NewTransport(transportOpts)

	stats := options.Statistics
	if stats == nil {
		stats = noop.NewStatistics()
	}

	reg := registry.NewRegistry()

	return &RedisEngine{
		Engine:    core.NewEngine(transport, stats, reg, options.EngineOptions...),
		transport: transport,
		stats:     stats,
		registry:  reg,
	}
}

// GetRegistry returns the handler registry for advanced usage.
func (e *RedisEngine) GetRegistry() *registry.Registry {
	return e.registry
}

// GetTransport returns the Redis transport for advanced usage.
func (e *RedisEngine) GetTransport() *redis.Transport {
	return e.transport
}

// GetStats returns the statistics backend.
func (e *RedisEngine) GetStats() core.Statistics {
	return e.stats
}

// MustRun runs the engine with signal handling and panics on error.
func (e *RedisEngine) MustRun(ctx context.Context) {
	if err := e.Run(ctx); err != nil {
		panic(err)
	}
}
