package redis

import (
	"log/slog"
	"time"

	redisutil "github.com/BranchIntl/ojsworker/internal/redis"
)

// Options for the Redis transport
type Options struct {
	// URI is the Redis connection URI
	URI string

	// Namespace is the key prefix in Redis
	Namespace string

	// LeaseTimeout is how long a fetched job stays claimed without a
	// heartbeat before it is returned to its queue
	LeaseTimeout time.Duration

	// ResultTTL keeps ack results under result:<id>; 0 discards them
	ResultTTL time.Duration

	// MaxDead caps the dead-job list; 0 keeps everything
	MaxDead int

	UseNumber bool
	Logger    *slog.Logger

	MaxConnections int
	MaxIdle        int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// TLS options
	UseTLS        bool
	TLSSkipVerify bool
	TLSCertPath   string
}

// DefaultOptions returns default Redis transport options
func DefaultOptions() Options {
	return Options{
		URI:            "redis://localhost:6379/",
		Namespace:      "ojs:",
		LeaseTimeout:   30 * time.Second,
		ResultTTL:      24 * time.Hour,
		MaxDead:        10000,
		MaxConnections: 10,
		MaxIdle:        2,
		IdleTimeout:    240 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

func (o Options) connection() redisutil.Config {
	return redisutil.Config{
		URI:            o.URI,
		MaxActive:      o.MaxConnections,
		MaxIdle:        o.MaxIdle,
		IdleTimeout:    o.IdleTimeout,
		ConnectTimeout: o.ConnectTimeout,
		ReadTimeout:    o.ReadTimeout,
		WriteTimeout:   o.WriteTimeout,
		UseTLS:         o.UseTLS,
		TLSSkipVerify:  o.TLSSkipVerify,
		TLSCertPath:    o.TLSCertPath,
	}
}
