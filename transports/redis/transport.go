// Package redis implements the worker protocol on a Redis reliable queue.
//
// Producers RPUSH OJS envelopes onto <ns>queue:<name>. Fetch moves them
// atomically into the active hash with a lease; Heartbeat extends leases;
// Ack and Nack remove them, Nack keeping a copy on the dead list. Leases
// that expire are returned to their queue on the next Fetch.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"

	"github.com/BranchIntl/ojsworker/errors"
	redisutil "github.com/BranchIntl/ojsworker/internal/redis"
	"github.com/BranchIntl/ojsworker/job"
	"github.com/BranchIntl/ojsworker/serializers/ojs"
)

// Transport implements core.Transport for Redis
type Transport struct {
	mu         sync.RWMutex
	pool       *redis.Pool
	namespace  string
	options    Options
	serializer *ojs.Serializer
	logger     *slog.Logger
	now        func() time.Time
}

// DeadJob is one entry of the dead list
type DeadJob struct {
	Job      json.RawMessage `json:"job"`
	Error    *job.Error      `json:"error"`
	FailedAt string          `json:"failed_at"`
}

// NewTransport creates a new Redis transport
func NewTransport(options Options) *Transport {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	serializer := ojs.NewSerializer()
	serializer.SetUseNumber(options.UseNumber)

	return &Transport{
		namespace:  options.Namespace,
		options:    options,
		serializer: serializer,
		logger:     options.Logger,
		now:        time.Now,
	}
}

// Connect creates the pool and verifies the server answers
func (r *Transport) Connect(ctx context.Context) error {
	pool := redisutil.NewPool(r.options.connection())
	if err := redisutil.Ping(pool, r.options.URI); err != nil {
		pool.Close()
		return err
	}

	r.mu.Lock()
	r.pool = pool
	r.mu.Unlock()
	return nil
}

// Close closes the connection pool
func (r *Transport) Close() error {
	r.mu.Lock()
	pool := r.pool
	r.pool = nil
	r.mu.Unlock()

	if pool != nil {
		return pool.Close()
	}
	return nil
}

// Health pings the server
func (r *Transport) Health() error {
	r.mu.RLock()
	pool := r.pool
	r.mu.RUnlock()

	if pool == nil {
		return errors.ErrNotConnected
	}
	return redisutil.Ping(pool, r.options.URI)
}

// Options returns the options the transport was created with
func (r *Transport) Options() Options {
	return r.options
}

// Type returns the transport type
func (r *Transport) Type() string {
	return "redis"
}

// Fetch reclaims expired leases and then claims up to batchSize jobs,
// draining queues in order
func (r *Transport) Fetch(ctx context.Context, queues []string, batchSize int) ([]*job.Job, error) {
	conn, err := r.conn(ctx, "fetch")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	now := r.now()
	if n, err := redis.Int(reclaimScript.Do(conn, r.activeKey(), r.leaseKey(), now.UnixMilli(), r.namespace)); err != nil {
		return nil, errors.ClassifyNetError("fetch", err)
	} else if n > 0 {
		r.logger.Info("Returned jobs with expired leases to their queues", "count", n)
	}

	args := redis.Args{}.
		Add(r.activeKey(), r.leaseKey(), r.attemptsKey()).
		Add(now.UnixMilli(), r.options.LeaseTimeout.Milliseconds(), batchSize, r.namespace).
		AddFlat(queues)
	reply, err := redis.Values(fetchScript.Do(conn, args...))
	if err != nil {
		return nil, errors.ClassifyNetError("fetch", err)
	}

	jobs := make([]*job.Job, 0, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		raw, _ := redis.Bytes(reply[i], nil)
		attempt, _ := redis.Int(reply[i+1], nil)

		j, err := r.serializer.DecodeJob(raw)
		if err != nil || attempt == 0 {
			if err == nil {
				err = errors.NewSerializationError(r.serializer.GetFormat(), errors.ErrInvalidJob)
			}
			r.bury(conn, raw, err)
			continue
		}
		j.State = job.StateActive
		j.Attempt = attempt
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// bury moves an undecodable envelope to the dead list, releasing its
// lease if the fetch script took one
func (r *Transport) bury(conn redis.Conn, raw []byte, cause error) {
	r.logger.Error("Failed to decode job", "error", cause)
	entry, _ := json.Marshal(map[string]any{
		"raw":       string(raw),
		"error":     &job.Error{Type: "SerializationError", Message: cause.Error()},
		"failed_at": r.now().UTC().Format(time.RFC3339),
	})

	var envelope struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &envelope)

	conn.Send("MULTI")
	conn.Send("LPUSH", r.deadKey(), entry)
	if envelope.ID != "" {
		conn.Send("HDEL", r.activeKey(), envelope.ID)
		conn.Send("ZREM", r.leaseKey(), envelope.ID)
		conn.Send("HDEL", r.attemptsKey(), envelope.ID)
	}
	if _, err := conn.Do("EXEC"); err != nil {
		r.logger.Error("Failed to store undecodable job", "error", err)
	}
}

// Ack removes jobID from the active set and stores its result
func (r *Transport) Ack(ctx context.Context, jobID string, result any) error {
	var encoded []byte
	ttl := int64(r.options.ResultTTL / time.Second)
	if ttl > 0 && result != nil {
		var err error
		if encoded, err = r.serializer.Marshal(result); err != nil {
			return errors.NewTransportError("ack", errors.KindProtocol, err)
		}
	} else {
		ttl = 0
	}

	return r.settle(ctx, "ack", jobID, ackScript,
		r.activeKey(), r.leaseKey(), r.attemptsKey(), r.resultKey(jobID),
		jobID, encoded, ttl)
}

// Nack removes jobID from the active set and records it on the dead list
func (r *Transport) Nack(ctx context.Context, jobID string, jobErr *job.Error) error {
	encoded, err := r.serializer.Marshal(jobErr)
	if err != nil {
		return errors.NewTransportError("nack", errors.KindProtocol, err)
	}

	return r.settle(ctx, "nack", jobID, nackScript,
		r.activeKey(), r.leaseKey(), r.attemptsKey(), r.deadKey(),
		jobID, encoded, r.now().UTC().Format(time.RFC3339), r.options.MaxDead)
}

func (r *Transport) settle(ctx context.Context, op, jobID string, script *redis.Script, keysAndArgs ...any) error {
	conn, err := r.conn(ctx, op)
	if err != nil {
		return err
	}
	defer conn.Close()

	found, err := redis.Int(script.Do(conn, keysAndArgs...))
	if err != nil {
		return errors.ClassifyNetError(op, err)
	}
	if found == 0 {
		return &errors.TransportError{Op: op, Kind: errors.KindClient, Code: "not_found",
			Err: fmt.Errorf("%w: %s", errors.ErrJobNotFound, jobID)}
	}
	return nil
}

// Heartbeat extends the leases of jobIDs; unknown ids are ignored
func (r *Transport) Heartbeat(ctx context.Context, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}

	conn, err := r.conn(ctx, "heartbeat")
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := r.now().Add(r.options.LeaseTimeout).UnixMilli()
	args := redis.Args{}.Add(r.leaseKey(), "XX")
	for _, id := range jobIDs {
		args = args.Add(deadline, id)
	}
	if _, err := conn.Do("ZADD", args...); err != nil {
		return errors.ClassifyNetError("heartbeat", err)
	}
	return nil
}

// Enqueue pushes j onto its queue, assigning defaults for a new job
func (r *Transport) Enqueue(ctx context.Context, j *job.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Queue == "" {
		j.Queue = "default"
	}
	if j.State == "" {
		j.State = job.StateAvailable
	}
	data, err := r.serializer.EncodeJob(j)
	if err != nil {
		return err
	}

	conn, err := r.conn(ctx, "enqueue")
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Do("RPUSH", r.queueKey(j.Queue), data); err != nil {
		return errors.ClassifyNetError("enqueue", err)
	}
	if _, err := conn.Do("SADD", r.queuesKey(), j.Queue); err != nil {
		r.logger.Warn("Failed to track queue", "queue", j.Queue, "error", err)
	}
	return nil
}

// QueueLength returns the number of jobs waiting in queue
func (r *Transport) QueueLength(ctx context.Context, queue string) (int64, error) {
	conn, err := r.conn(ctx, "queue_length")
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	n, err := redis.Int64(conn.Do("LLEN", r.queueKey(queue)))
	if err != nil {
		return 0, errors.ClassifyNetError("queue_length", err)
	}
	return n, nil
}

// DeadJobs returns up to limit dead-list entries, newest first
func (r *Transport) DeadJobs(ctx context.Context, limit int) ([]DeadJob, error) {
	conn, err := r.conn(ctx, "dead_jobs")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	raws, err := redis.ByteSlices(conn.Do("LRANGE", r.deadKey(), 0, limit-1))
	if err != nil {
		return nil, errors.ClassifyNetError("dead_jobs", err)
	}

	dead := make([]DeadJob, 0, len(raws))
	for _, raw := range raws {
		var d DeadJob
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, errors.NewSerializationError(r.serializer.GetFormat(), err)
		}
		dead = append(dead, d)
	}
	return dead, nil
}

func (r *Transport) conn(ctx context.Context, op string) (redis.Conn, error) {
	r.mu.RLock()
	pool := r.pool
	r.mu.RUnlock()

	if pool == nil {
		return nil, errors.NewTransportError(op, errors.KindConnection, errors.ErrNotConnected)
	}
	conn, err := pool.GetContext(ctx)
	if err != nil {
		return nil, errors.ClassifyNetError(op, err)
	}
	return conn, nil
}

// Key helpers

func (r *Transport) queueKey(queue string) string {
	return fmt.Sprintf("%squeue:%s", r.namespace, queue)
}

func (r *Transport) queuesKey() string   { return r.namespace + "queues" }
func (r *Transport) activeKey() string   { return r.namespace + "active" }
func (r *Transport) leaseKey() string    { return r.namespace + "leases" }
func (r *Transport) attemptsKey() string { return r.namespace + "attempts" }
func (r *Transport) deadKey() string     { return r.namespace + "dead" }

func (r *Transport) resultKey(jobID string) string {
	return fmt.Sprintf("%sresult:%s", r.namespace, jobID)
}
