package engines

import (
	"context"

	"github.com/BranchIntl/ojsworker/core"
	"github.com/BranchIntl/ojsworker/registry"
	"github.com/BranchIntl/ojsworker/statistics/noop"
	"github.com/BranchIntl/ojsworker/transports/http"
)

// HTTPEngine provides a pre-configured engine that talks to an OJS server
// over the HTTP/JSON worker protocol, with NoOp statistics by default.
type HTTPEngine struct {
	*core.Engine
	transport *http.Transport
	stats     core.Statistics
	registry  *registry.Registry
}

// HTTPOptions contains configuration for HTTPEngine.
type HTTPOptions struct {
	// URL is the OJS server base URL (default: http://localhost:8080)
	URL string

	// HTTPOptions provides detailed transport configuration
	HTTPOptions http.Options

	// Statistics backend (optional, defaults to NoOp)
	Statistics core.Statistics

	// EngineOptions contains core engine configuration options
	EngineOptions []core.EngineOption
}

// DefaultHTTPOptions returns a working configuration for a local OJS server.
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		URL:         "http://localhost:8080",
		HTTPOptions: http.DefaultOptions(),
		EngineOptions: []core.EngineOption{
			core.WithConcurrency(10),
			core.WithQueues([]string{"default"}),
		},
	}
}

// NewHTTPEngine creates a new pre-configured HTTP engine.
func NewHTTPEngine(options HTTPOptions) *HTTPEngine {
	transportOpts := options.HTTPOptions
	if options.URL != "" {
		transportOpts.URL = options.URL
	}
	transport := http.NewTransport(transportOpts)

	stats := options.Statistics
	if stats == nil {
		stats = noop.NewStatistics()
	}

	reg := registry.NewRegistry()

	return &HTTPEngine{
		Engine:    core.NewEngine(transport, stats, reg, options.EngineOptions...),
		transport: transport,
		stats:     stats,
		registry:  reg,
	}
}

// GetRegistry returns the handler registry for advanced usage.
func (e *HTTPEngine) GetRegistry() *registry.Registry {
	return e.registry
}

// GetTransport returns the HTTP transport for advanced usage.
func (e *HTTPEngine) GetTransport() *http.Transport {
	return e.transport
}

// GetStats returns the statistics backend.
func (e *HTTPEngine) GetStats() core.Statistics {
	return e.stats
}

// MustRun runs the engine with signal handling and panics on error.
func (e *HTTPEngine) MustRun(ctx context.Context) {
	if err := e.Run(ctx); err != nil {
		panic(err)
	}
}
