package ojs

import "github.com/BranchIntl/ojsworker/job"

// Worker protocol request and response bodies

type FetchRequest struct {
	Queues    []string `json:"queues"`
	BatchSize int      `json:"batch_size"`
	WorkerID  string   `json:"worker_id,omitempty"`
}

type FetchResponse struct {
	Jobs []*job.Job `json:"jobs"`
}

type AckRequest struct {
	JobID  string `json:"job_id"`
	Result any    `json:"result,omitempty"`
}

type NackRequest struct {
	JobID string     `json:"job_id"`
	Error *job.Error `json:"error"`
}

type HeartbeatRequest struct {
	JobIDs   []string `json:"job_ids"`
	WorkerID string   `json:"worker_id,omitempty"`
}

// ErrorResponse is the error body returned by an OJS server
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
