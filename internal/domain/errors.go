package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when there are no sentences to score.
var ErrEmptyInput = errors.New("no sentences to score")

// ExternalServiceError reports a failed or timed-out call to an external
// dependency (classifier, embedding endpoint, vector store, LLM).
type ExternalServiceError struct {
	Service string
	Op      string
	Timeout bool
	Err     error
}

func (e *ExternalServiceError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Service, e.Op)
	if e.Timeout {
		msg += " (timeout)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// NewExternalServiceError wraps err, flagging context deadline errors as timeouts.
func NewExternalServiceError(service, op string, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service: service,
		Op:      op,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}

// EmbeddingError reports that no usable vector could be produced for a text.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	if e.Err == nil {
		return "embedding failed"
	}
	return "embedding failed: " + e.Err.Error()
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// MalformedResponseError reports LLM output that lacks a usable JSON object
// or whose object violates the expected contract.
type MalformedResponseError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	msg := "malformed llm response: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is, or wraps, a timed-out external call.
func IsTimeout(err error) bool {
	var ext *ExternalServiceError
	if errors.As(err, &ext) && ext.Timeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
