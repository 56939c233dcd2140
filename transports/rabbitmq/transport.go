// Package rabbitmq implements the worker protocol on top of AMQP 0-9-1.
// Jobs are pulled with basic.get and stay unacknowledged, and therefore
// leased to this connection, until they are acked or nacked.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
	"github.com/BranchIntl/ojsworker/serializers/ojs"
)

// delivery is an unsettled message held on behalf of a running job
type delivery struct {
	tag     uint64
	channel *amqp.Channel
	queue   string
	body    []byte
}

// Transport implements core.Transport for RabbitMQ
type Transport struct {
	connection     *amqp.Connection
	channel        *amqp.Channel
	options        Options
	serializer     *ojs.Serializer
	logger         *slog.Logger
	declaredQueues map[string]bool
	held           map[string]delivery
	mu             sync.RWMutex
	notifyClose    chan *amqp.Error
	isConnected    bool
	closing        chan struct{}
}

// NewTransport creates a new RabbitMQ transport
func NewTransport(options Options) *Transport {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	serializer := ojs.NewSerializer()
	serializer.SetUseNumber(options.UseNumber)

	return &Transport{
		options:        options,
		serializer:     serializer,
		logger:         options.Logger,
		declaredQueues: make(map[string]bool),
		held:           make(map[string]delivery),
	}
}

// Connect establishes connection to RabbitMQ
func (r *Transport) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closing = make(chan struct{})
	return r.connect()
}

// connect establishes the connection and channel, and sets up monitoring.
// This method expects the caller to hold the lock.
func (r *Transport) connect() error {
	conn, err := amqp.Dial(r.options.URI)
	if err != nil {
		return errors.NewConnectionError(r.options.URI,
			fmt.Errorf("failed to connect to RabbitMQ: %w", err))
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.NewConnectionError(r.options.URI,
			fmt.Errorf("failed to open channel: %w", err))
	}

	if r.options.PrefetchCount > 0 {
		if err := ch.Qos(r.options.PrefetchCount, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return errors.NewConnectionError(r.options.URI,
				fmt.Errorf("failed to set QoS: %w", err))
		}
	}

	r.connection = conn
	r.channel = ch
	r.declaredQueues = make(map[string]bool)

	r.notifyClose = make(chan *amqp.Error, 1)
	r.connection.NotifyClose(r.notifyClose)
	r.isConnected = true

	if r.options.ReconnectEnabled {
		go r.handleReconnection(r.notifyClose, r.closing)
	}

	return nil
}

// handleReconnection redials after an unexpected close. Deliveries held on
// the old channel are forgotten; the broker requeues them.
func (r *Transport) handleReconnection(notify <-chan *amqp.Error, closing <-chan struct{}) {
	select {
	case err := <-notify:
		if err == nil {
			return
		}
		r.logger.Warn("Connection closed, reconnecting", "error", err)
	case <-closing:
		return
	}

	r.mu.Lock()
	r.isConnected = false
	r.held = make(map[string]delivery)
	r.mu.Unlock()

	for {
		select {
		case <-closing:
			return
		case <-time.After(r.options.ReconnectDelay):
		}

		r.mu.Lock()
		err := r.connect()
		r.mu.Unlock()

		if err == nil {
			r.logger.Info("Reconnected to RabbitMQ")
			return
		}
		r.logger.Warn("Reconnect failed", "error", err)
	}
}

// Close closes the RabbitMQ connection
func (r *Transport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closing != nil {
		close(r.closing)
		r.closing = nil
	}
	r.isConnected = false
	r.held = make(map[string]delivery)

	if r.channel != nil && !r.channel.IsClosed() {
		if err := r.channel.Close(); err != nil {
			return err
		}
	}
	if r.connection != nil && !r.connection.IsClosed() {
		return r.connection.Close()
	}
	return nil
}

// Health checks the RabbitMQ connection health
func (r *Transport) Health() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.isConnected || r.connection == nil || r.connection.IsClosed() {
		return errors.ErrNotConnected
	}
	return nil
}

// Options returns the options the transport was created with
func (r *Transport) Options() Options {
	return r.options
}

// Type returns the transport type
func (r *Transport) Type() string {
	return "rabbitmq"
}

// Fetch pulls up to batchSize messages, draining queues in order
func (r *Transport) Fetch(ctx context.Context, queues []string, batchSize int) ([]*job.Job, error) {
	channel, err := r.getChannel("fetch")
	if err != nil {
		return nil, err
	}

	var jobs []*job.Job
	for _, queue := range queues {
		if err := r.ensureQueue(queue); err != nil {
			return jobs, errors.ClassifyNetError("fetch", err)
		}

		for len(jobs) < batchSize {
			if err := ctx.Err(); err != nil {
				return jobs, errors.ClassifyNetError("fetch", err)
			}

			d, ok, err := channel.Get(queue, false)
			if err != nil {
				return jobs, errors.ClassifyNetError("fetch", err)
			}
			if !ok {
				break
			}

			if j := r.hold(channel, d, queue); j != nil {
				jobs = append(jobs, j)
			}
		}
	}
	return jobs, nil
}

// hold decodes a delivery and remembers it until settlement. Undecodable
// messages are rejected without requeue.
func (r *Transport) hold(channel *amqp.Channel, d amqp.Delivery, queue string) *job.Job {
	var j job.Job
	if err := r.serializer.Unmarshal(d.Body, &j); err != nil {
		r.reject(d, err)
		return nil
	}
	fillFromDelivery(&j, d, queue)
	if err := r.serializer.Validate(&j); err != nil {
		r.reject(d, err)
		return nil
	}

	r.mu.Lock()
	r.held[j.ID] = delivery{tag: d.DeliveryTag, channel: channel, queue: queue, body: d.Body}
	r.mu.Unlock()
	return &j
}

func (r *Transport) reject(d amqp.Delivery, cause error) {
	r.logger.Error("Failed to decode job", "message_id", d.MessageId, "error", cause)
	if err := d.Nack(false, false); err != nil {
		r.logger.Error("Failed to reject undecodable message", "error", err)
	}
}

// Ack acknowledges the delivery that carried jobID
func (r *Transport) Ack(ctx context.Context, jobID string, result any) error {
	d, err := r.release("ack", jobID)
	if err != nil {
		return err
	}
	if err := d.channel.Ack(d.tag, false); err != nil {
		return errors.ClassifyNetError("ack", err)
	}
	return nil
}

// Nack rejects the delivery that carried jobID, first copying it to the
// failure exchange when one is configured
func (r *Transport) Nack(ctx context.Context, jobID string, jobErr *job.Error) error {
	d, err := r.release("nack", jobID)
	if err != nil {
		return err
	}

	if r.options.FailureExchange != "" {
		err := d.channel.PublishWithContext(ctx,
			r.options.FailureExchange, // exchange
			d.queue,                   // routing key
			false,                     // mandatory
			false,                     // immediate
			amqp.Publishing{
				ContentType:  ojs.ContentType,
				Body:         d.body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				MessageId:    jobID,
				Headers:      failureHeaders(d.queue, jobErr, time.Now()),
			})
		if err != nil {
			r.logger.Error("Failed to publish job failure", "job_id", jobID, "error", err)
		}
	}

	if err := d.channel.Nack(d.tag, false, r.options.RequeueOnNack); err != nil {
		return errors.ClassifyNetError("nack", err)
	}
	return nil
}

// Heartbeat is a no-op: unacknowledged deliveries stay leased for as long as
// the channel is open. IDs no longer held are reported at debug level.
func (r *Transport) Heartbeat(ctx context.Context, jobIDs []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range jobIDs {
		if _, ok := r.held[id]; !ok {
			r.logger.Debug("Heartbeat for job not held by this connection", "job_id", id)
		}
	}
	return nil
}

// Enqueue publishes a job to its queue
func (r *Transport) Enqueue(ctx context.Context, j *job.Job) error {
	channel, err := r.getChannel("enqueue")
	if err != nil {
		return err
	}

	if err := r.ensureQueue(j.Queue); err != nil {
		return errors.ClassifyNetError("enqueue", err)
	}

	data, err := r.serializer.EncodeJob(j)
	if err != nil {
		return err
	}

	err = channel.PublishWithContext(
		ctx,     // context
		"",      // exchange
		j.Queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  ojs.ContentType,
			Body:         data,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    j.ID,
		})
	if err != nil {
		return errors.ClassifyNetError("enqueue", err)
	}
	return nil
}

// release forgets the delivery that carried jobID and returns it
func (r *Transport) release(op, jobID string) (delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.held[jobID]
	if !ok {
		return delivery{}, &errors.TransportError{Op: op, Kind: errors.KindClient, Code: "not_found", Err: errors.ErrJobNotFound}
	}
	delete(r.held, jobID)
	return d, nil
}

// getChannel returns the channel if connected
func (r *Transport) getChannel(op string) (*amqp.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.channel == nil || !r.isConnected {
		return nil, errors.NewTransportError(op, errors.KindConnection, errors.ErrNotConnected)
	}
	return r.channel, nil
}

// ensureQueue makes sure a queue is declared
func (r *Transport) ensureQueue(name string) error {
	if !r.options.DeclareQueues {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel == nil {
		return errors.ErrNotConnected
	}
	if r.declaredQueues[name] {
		return nil
	}

	args := buildQueueArgs(r.options.QueueOptions)

	_, err := r.channel.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,  // arguments
	)
	if err != nil {
		return err
	}

	r.declaredQueues[name] = true
	return nil
}
