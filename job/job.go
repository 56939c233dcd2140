// Package job defines the job envelope exchanged with an OJS server and the
// per-dispatch context handed to handlers and middleware.
package job

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the server-authoritative lifecycle state of a job
type State string

const (
	StateScheduled State = "scheduled"
	StateAvailable State = "available"
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateRetryable State = "retryable"
	StateCancelled State = "cancelled"
	StateDiscarded State = "discarded"
)

// Valid reports whether s is one of the known lifecycle states
func (s State) Valid() bool {
	switch s {
	case StateScheduled, StateAvailable, StatePending, StateActive,
		StateCompleted, StateRetryable, StateCancelled, StateDiscarded:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateDiscarded
}

// Job is a unit of work as delivered by the server. Workers treat it as
// read-only; state transitions happen on the server.
type Job struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Queue       string         `json:"queue"`
	Args        []any          `json:"args"`
	Meta        map[string]any `json:"meta,omitempty"`
	Priority    *int           `json:"priority,omitempty"`
	Timeout     *int           `json:"timeout,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	EnqueuedAt  *time.Time     `json:"enqueued_at,omitempty"`
	State       State          `json:"state,omitempty"`
	Attempt     int            `json:"attempt"`
	Tags        []string       `json:"tags,omitempty"`
}

// TimeoutDuration returns the execution timeout, or zero when none is set.
// Timeout is expressed in seconds on the wire.
func (j *Job) TimeoutDuration() time.Duration {
	if j.Timeout == nil || *j.Timeout <= 0 {
		return 0
	}
	return time.Duration(*j.Timeout) * time.Second
}

// Bind decodes argument i into dst by round-tripping it through JSON
func (j *Job) Bind(i int, dst any) error {
	if i < 0 || i >= len(j.Args) {
		return fmt.Errorf("job %s: argument %d out of range (have %d)", j.ID, i, len(j.Args))
	}
	data, err := json.Marshal(j.Args[i])
	if err != nil {
		return fmt.Errorf("job %s: encode argument %d: %w", j.ID, i, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("job %s: decode argument %d: %w", j.ID, i, err)
	}
	return nil
}

// String returns a short human-readable description
func (j *Job) String() string {
	return fmt.Sprintf("%s(%s)@%s", j.Type, j.ID, j.Queue)
}

// Error is the structured failure reported to the server on nack
type Error struct {
	Type      string   `json:"type"`
	Message   string   `json:"message"`
	Backtrace []string `json:"backtrace,omitempty"`
}

func (e *Error) Error() string {
	return e.Type + ": " + e.Message
}
