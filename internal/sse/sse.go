// Package sse decodes the agent backend's Server-Sent-Event stream into
// ordered step events.
//
// Frames are separated by a blank line and carry a JSON object after the
// "data: " prefix. Each object maps step names to step payloads; a Policy
// decides how a payload becomes StepEvents.
package sse

import (
	"errors"
	"fmt"
)

// StepEvent is one decoded unit of agent output.
type StepEvent struct {
	Key       string `json:"key"`
	Content   string `json:"content"`
	IsThought bool   `json:"isThought"`
}

func (e StepEvent) String() string {
	if e.IsThought {
		return fmt.Sprintf("[thought] %s: %s", e.Key, e.Content)
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Content)
}

// Sink receives events in stream order. Returning an error stops decoding
// and the error is handed back to the caller unchanged.
type Sink func(StepEvent) error

// ErrorObserver is notified about frames dropped because their payload
// could not be decoded.
type ErrorObserver func(frame string, err error)

var (
	// ErrClosed is returned when a decoder is used after Close or Fail.
	ErrClosed = errors.New("sse: decoder already closed")
	// ErrMalformedPayload marks a data frame whose payload is not a JSON object.
	// It is only reported to the ErrorObserver; decoding continues.
	ErrMalformedPayload = errors.New("sse: malformed payload")
)

// TransportError wraps a failure reading the underlying stream. It ends the
// event sequence.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("read stream: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
