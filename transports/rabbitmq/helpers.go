package rabbitmq

import (
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/BranchIntl/ojsworker/job"
)

// Headers carried by messages published to the failure exchange
const (
	HeaderErrorType    = "x-ojs-error-type"
	HeaderErrorMessage = "x-ojs-error-message"
	HeaderFailedAt     = "x-ojs-failed-at"
	HeaderQueue        = "x-ojs-queue"
)

// buildQueueArgs creates the AMQP arguments table from options
func buildQueueArgs(options QueueOptions) amqp.Table {
	args := amqp.Table{}

	if options.MessageTTL > 0 {
		args["x-message-ttl"] = int64(options.MessageTTL / time.Millisecond)
	}

	if options.DeadLetterQueue != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = options.DeadLetterQueue
	}

	// Quorum queues enforce x-delivery-limit
	if options.MaxRetries > 0 {
		args["x-delivery-limit"] = options.MaxRetries
	}

	if options.QueueType != "" {
		args["x-queue-type"] = options.QueueType
	}

	return args
}

// failureHeaders describes a nack for the failure exchange
func failureHeaders(queue string, jobErr *job.Error, now time.Time) amqp.Table {
	headers := amqp.Table{
		HeaderQueue:    queue,
		HeaderFailedAt: now.UTC().Format(time.RFC3339),
	}
	if jobErr != nil {
		headers[HeaderErrorType] = jobErr.Type
		headers[HeaderErrorMessage] = jobErr.Message
	}
	return headers
}

// fillFromDelivery completes an envelope with broker metadata
func fillFromDelivery(j *job.Job, d amqp.Delivery, queue string) {
	if j.ID == "" {
		j.ID = d.MessageId
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Queue == "" {
		j.Queue = queue
	}
	if j.EnqueuedAt == nil && !d.Timestamp.IsZero() {
		ts := d.Timestamp
		j.EnqueuedAt = &ts
	}
	j.State = job.StateActive
	// Redelivered messages have been attempted at least once before
	if j.Attempt == 0 {
		j.Attempt = 1
		if d.Redelivered {
			j.Attempt = 2
		}
	}
}
