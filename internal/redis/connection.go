// Package redis holds the redigo connection helpers shared by the Redis
// backed components.
package redis

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	ojserrors "github.com/BranchIntl/ojsworker/errors"
	"github.com/gomodule/redigo/redis"
)

// ErrInvalidScheme is returned for URIs other than redis://, rediss:// and unix://
var ErrInvalidScheme = errors.New("invalid Redis database URI scheme")

// Config describes how to reach a Redis server
type Config struct {
	URI            string
	MaxActive      int
	MaxIdle        int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	UseTLS         bool
	TLSSkipVerify  bool
	TLSCertPath    string
}

// NewPool builds a lazily dialing pool. Idle connections older than a
// minute are pinged before reuse.
func NewPool(cfg Config) *redis.Pool {
	return &redis.Pool{
		MaxActive:   cfg.MaxActive,
		MaxIdle:     cfg.MaxIdle,
		IdleTimeout: cfg.IdleTimeout,
		Dial: func() (redis.Conn, error) {
			return Dial(cfg)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// Ping borrows a connection from pool and round-trips a PING
func Ping(pool *redis.Pool, uri string) error {
	conn := pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return ojserrors.NewConnectionError(Redact(uri), fmt.Errorf("ping failed: %w", err))
	}
	return nil
}

// Dial opens a single connection described by cfg
func Dial(cfg Config) (redis.Conn, error) {
	uri, err := url.Parse(cfg.URI)
	if err != nil {
		return nil, ojserrors.NewConnectionError(Redact(cfg.URI), fmt.Errorf("invalid URI: %w", err))
	}

	opts := []redis.DialOption{
		redis.DialConnectTimeout(cfg.ConnectTimeout),
		redis.DialReadTimeout(cfg.ReadTimeout),
		redis.DialWriteTimeout(cfg.WriteTimeout),
	}

	var network, address string
	switch uri.Scheme {
	case "redis", "rediss":
		network, address = "tcp", uri.Host
		if uri.User != nil {
			if password, ok := uri.User.Password(); ok {
				opts = append(opts, redis.DialPassword(password))
			}
		}
		if len(uri.Path) > 1 {
			db, err := strconv.Atoi(uri.Path[1:])
			if err != nil {
				return nil, ojserrors.NewConnectionError(Redact(cfg.URI), fmt.Errorf("invalid database %q", uri.Path[1:]))
			}
			opts = append(opts, redis.DialDatabase(db))
		}
		if uri.Scheme == "rediss" || cfg.UseTLS {
			tlsConfig := &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify}
			if cfg.TLSCertPath != "" {
				pool, err := LoadCertPool(cfg.TLSCertPath)
				if err != nil {
					return nil, err
				}
				tlsConfig.RootCAs = pool
			}
			opts = append(opts, redis.DialUseTLS(true), redis.DialTLSConfig(tlsConfig))
		}
	case "unix":
		network, address = "unix", uri.Path
	default:
		return nil, ojserrors.NewConnectionError(Redact(cfg.URI), ErrInvalidScheme)
	}

	conn, err := redis.Dial(network, address, opts...)
	if err != nil {
		return nil, ojserrors.NewConnectionError(Redact(cfg.URI), fmt.Errorf("failed to connect: %w", err))
	}
	return conn, nil
}

// LoadCertPool returns the system pool extended with the PEM certificates
// found at certPath
func LoadCertPool(certPath string) (*x509.CertPool, error) {
	rootCAs, _ := x509.SystemCertPool()
	if rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}

	certs, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cert file %q: %w", certPath, err)
	}
	if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
		return nil, fmt.Errorf("failed to append certs from %q", certPath)
	}
	return rootCAs, nil
}

// Redact masks the password of a connection URI for use in errors and logs
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, ok := u.User.Password(); !ok {
		return uri
	}
	return u.Redacted()
}
