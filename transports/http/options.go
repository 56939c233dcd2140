package http

import (
	"log/slog"
	"net/http"
	"time"
)

// Options for the HTTP transport
type Options struct {
	// URL is the server base URL, e.g. http://localhost:8080
	URL string
	// BasePath is prepended to every worker endpoint
	BasePath string
	// WorkerID identifies this process to the server; generated when empty
	WorkerID string
	// Token, when set, is sent as a bearer token
	Token string
	// Headers are added to every request
	Headers map[string]string

	Timeout             time.Duration
	MaxIdleConnsPerHost int

	// UseNumber decodes numbers in job args as json.Number
	UseNumber bool

	// Client replaces the internally built client
	Client *http.Client
	Logger *slog.Logger
}

// DefaultOptions returns default HTTP transport options
func DefaultOptions() Options {
	return Options{
		URL:                 "http://localhost:8080",
		BasePath:            "/ojs/v1",
		Timeout:             30 * time.Second,
		MaxIdleConnsPerHost: 10,
	}
}
