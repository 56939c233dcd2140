// Package statistics selects a statistics backend by name.
package statistics

import (
	"fmt"

	"github.com/BranchIntl/ojsworker/core"
	"github.com/BranchIntl/ojsworker/statistics/noop"
	"github.com/BranchIntl/ojsworker/statistics/redis"
)

// StatsType represents the type of statistics backend
type StatsType string

const (
	// Redis statistics type
	Redis StatsType = "redis"
	// NoOp statistics type
	NoOp StatsType = "noop"
)

// Config is a generic statistics configuration
type Config struct {
	Type      StatsType
	URI       string
	Namespace string
}

// NewStatistics creates a statistics backend based on the configuration.
// An empty type selects NoOp.
func NewStatistics(config Config) (core.Statistics, error) {
	switch config.Type {
	case Redis:
		opts := redis.DefaultOptions()
		if config.URI != "" {
			opts.URI = config.URI
		}
		if config.Namespace != "" {
			opts.Namespace = config.Namespace
		}
		return redis.NewStatistics(opts), nil
	case NoOp, "":
		return noop.NewStatistics(), nil
	default:
		return nil, fmt.Errorf("unknown statistics type: %q", config.Type)
	}
}
