// Package ojs implements the JSON encoding of OJS job envelopes and worker
// protocol messages.
package ojs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
)

// ContentType is the media type of OJS request and response bodies
const ContentType = "application/openjobspec+json"

// Serializer encodes and decodes OJS JSON documents
type Serializer struct {
	useNumber bool
}

// NewSerializer creates a new OJS serializer
func NewSerializer() *Serializer {
	return &Serializer{
		useNumber: false,
	}
}

// Marshal encodes v as JSON
func (s *Serializer) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.NewSerializationError(s.GetFormat(), err)
	}
	return data, nil
}

// Unmarshal decodes data into v
func (s *Serializer) Unmarshal(data []byte, v any) error {
	return s.Decode(bytes.NewReader(data), v)
}

// Decode reads one JSON document from r into v
func (s *Serializer) Decode(r io.Reader, v any) error {
	decoder := json.NewDecoder(r)
	if s.useNumber {
		decoder.UseNumber()
	}

	if err := decoder.Decode(v); err != nil {
		return errors.NewSerializationError(s.GetFormat(), err)
	}
	return nil
}

// EncodeJob converts a job to JSON bytes
func (s *Serializer) EncodeJob(j *job.Job) ([]byte, error) {
	return s.Marshal(j)
}

// DecodeJob converts JSON bytes to a validated job
func (s *Serializer) DecodeJob(data []byte) (*job.Job, error) {
	var j job.Job
	if err := s.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	if err := s.Validate(&j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Validate checks the fields a worker needs to dispatch and settle a job
func (s *Serializer) Validate(j *job.Job) error {
	switch {
	case j == nil:
		return errors.NewSerializationError(s.GetFormat(), fmt.Errorf("%w: null job", errors.ErrInvalidJob))
	case j.ID == "":
		return errors.NewSerializationError(s.GetFormat(), fmt.Errorf("%w: missing id", errors.ErrInvalidJob))
	case j.Type == "":
		return errors.NewSerializationError(s.GetFormat(), fmt.Errorf("%w: job %s has no type", errors.ErrInvalidJob, j.ID))
	case j.State != "" && !j.State.Valid():
		return errors.NewSerializationError(s.GetFormat(), fmt.Errorf("%w: job %s has unknown state %q", errors.ErrInvalidJob, j.ID, j.State))
	}
	return nil
}

// GetFormat returns the serialization format name
func (s *Serializer) GetFormat() string {
	return "json"
}

// UseNumber returns whether to use json.Number
func (s *Serializer) UseNumber() bool {
	return s.useNumber
}

// SetUseNumber sets whether to use json.Number
func (s *Serializer) SetUseNumber(useNumber bool) {
	s.useNumber = useNumber
}
