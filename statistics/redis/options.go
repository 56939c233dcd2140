package redis

import (
	"time"

	redisutil "github.com/BranchIntl/ojsworker/internal/redis"
)

// Options for Redis statistics
type Options struct {
	// URI is the Redis connection URI (redis://, rediss:// or unix://)
	URI string

	// Namespace is the key prefix in Redis
	Namespace string

	// MaxFailures caps the length of the failure list; 0 keeps everything
	MaxFailures int

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

// DefaultOptions returns default Redis statistics options
func DefaultOptions() Options {
	return Options{
		URI:            "redis://localhost:6379/",
		Namespace:      "ojs:",
		MaxFailures:    1000,
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
