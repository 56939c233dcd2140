// Package http implements the worker protocol over OJS HTTP/JSON.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
	"github.com/BranchIntl/ojsworker/serializers/ojs"
)

const (
	userAgent    = "ojsworker-go"
	maxErrorBody = 64 << 10
)

// Transport implements core.Transport against an OJS server
type Transport struct {
	options    Options
	serializer *ojs.Serializer
	logger     *slog.Logger

	mu       sync.RWMutex
	client   *http.Client
	endpoint string
	lastErr  error
}

// NewTransport creates a new HTTP transport
func NewTransport(options Options) *Transport {
	if options.WorkerID == "" {
		options.WorkerID = uuid.NewString()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	serializer := ojs.NewSerializer()
	serializer.SetUseNumber(options.UseNumber)

	return &Transport{
		options:    options,
		serializer: serializer,
		logger:     options.Logger,
	}
}

// WorkerID returns the identifier sent with fetch and heartbeat calls
func (t *Transport) WorkerID() string {
	return t.options.WorkerID
}

// Options returns the options the transport was created with
func (t *Transport) Options() Options {
	return t.options
}

// Type returns the transport type
func (t *Transport) Type() string {
	return "http"
}

// Connect validates the server URL and prepares the HTTP client
func (t *Transport) Connect(ctx context.Context) error {
	u, err := url.Parse(t.options.URL)
	if err != nil {
		return errors.NewConnectionError(t.options.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewConnectionError(t.options.URL,
			fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidConfig, u.Scheme))
	}

	client := t.options.Client
	if client == nil {
		client = &http.Client{
			Timeout: t.options.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: t.options.MaxIdleConnsPerHost,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.client = client
	t.endpoint = strings.TrimRight(u.String(), "/") + "/" + strings.Trim(t.options.BasePath, "/")
	t.endpoint = strings.TrimRight(t.endpoint, "/")
	t.lastErr = nil
	return nil
}

// Close releases idle connections
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	return nil
}

// Health reports the last connection-level failure, if any
func (t *Transport) Health() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.client == nil {
		return errors.ErrNotConnected
	}
	return t.lastErr
}

// Fetch claims up to batchSize jobs. Envelopes that cannot be dispatched
// are logged and dropped; the server will redeliver them once their lease
// expires.
func (t *Transport) Fetch(ctx context.Context, queues []string, batchSize int) ([]*job.Job, error) {
	req := ojs.FetchRequest{
		Queues:    queues,
		BatchSize: batchSize,
		WorkerID:  t.options.WorkerID,
	}

	var resp ojs.FetchResponse
	if err := t.post(ctx, "fetch", "/workers/fetch", req, &resp); err != nil {
		return nil, err
	}

	jobs := make([]*job.Job, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		if err := t.serializer.Validate(j); err != nil {
			t.logger.Warn("Dropping undecodable job", "error", err)
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Ack reports successful completion
func (t *Transport) Ack(ctx context.Context, jobID string, result any) error {
	return t.post(ctx, "ack", "/workers/ack", ojs.AckRequest{JobID: jobID, Result: result}, nil)
}

// Nack reports a failure
func (t *Transport) Nack(ctx context.Context, jobID string, jobErr *job.Error) error {
	return t.post(ctx, "nack", "/workers/nack", ojs.NackRequest{JobID: jobID, Error: jobErr}, nil)
}

// Heartbeat extends the leases of the given jobs in one request
func (t *Transport) Heartbeat(ctx context.Context, jobIDs []string) error {
	req := ojs.HeartbeatRequest{
		JobIDs:   jobIDs,
		WorkerID: t.options.WorkerID,
	}
	return t.post(ctx, "heartbeat", "/workers/heartbeat", req, nil)
}

func (t *Transport) post(ctx context.Context, op, path string, body, out any) error {
	t.mu.RLock()
	client, endpoint := t.client, t.endpoint
	t.mu.RUnlock()

	if client == nil {
		return errors.NewTransportError(op, errors.KindConnection, errors.ErrNotConnected)
	}

	data, err := t.serializer.Marshal(body)
	if err != nil {
		return errors.NewTransportError(op, errors.KindProtocol, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+path, bytes.NewReader(data))
	if err != nil {
		return errors.NewTransportError(op, errors.KindProtocol, err)
	}
	t.setHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		te := errors.ClassifyNetError(op, err)
		t.setLastErr(te)
		return te
	}
	defer resp.Body.Close()
	t.setLastErr(nil)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return t.statusError(op, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}

	if err := t.serializer.Decode(resp.Body, out); err != nil {
		return &errors.TransportError{Op: op, Kind: errors.KindProtocol, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func (t *Transport) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", ojs.ContentType)
	req.Header.Set("Accept", ojs.ContentType+", application/json")
	req.Header.Set("User-Agent", userAgent)
	if t.options.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.options.Token)
	}
	for k, v := range t.options.Headers {
		req.Header.Set(k, v)
	}
}

func (t *Transport) setLastErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastErr = err
}

// statusError classifies a non-2xx response
func (t *Transport) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	te := &errors.TransportError{Op: op, StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		te.Kind = errors.KindRateLimit
		te.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode >= 500:
		te.Kind = errors.KindServer
	default:
		te.Kind = errors.KindClient
	}

	var errResp ojs.ErrorResponse
	if len(body) > 0 && t.serializer.Unmarshal(body, &errResp) == nil &&
		(errResp.Error.Code != "" || errResp.Error.Message != "") {
		te.Code = errResp.Error.Code
		te.Err = fmt.Errorf("%s", errResp.Error.Message)
		return te
	}

	msg := http.StatusText(resp.StatusCode)
	if text := strings.TrimSpace(string(body)); text != "" {
		msg = text
	}
	te.Err = fmt.Errorf("%s", msg)
	return te
}

// parseRetryAfter accepts delay-seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
