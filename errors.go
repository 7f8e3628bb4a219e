// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import (
	"encoding/json"
	"fmt"
	"time"
)

// ErrorKind classifies an Error per the error taxonomy of the engine.
type ErrorKind string

const (
	// ErrArgument covers arity, name, type, or value violations against
	// a Command's argument descriptions.
	ErrArgument ErrorKind = "argument"
	// ErrType covers operations on a Value whose type does not support
	// them, such as ordering across variants or reusing a drained Stream.
	ErrType ErrorKind = "type"
	// ErrName covers declare/set/remove violations against a Scope.
	ErrName ErrorKind = "name"
	// ErrBlock covers a read of an uninitialized RowChannel or a send on
	// a closed channel.
	ErrBlock ErrorKind = "block"
	// ErrIO covers errors surfaced by collaborators (filesystem,
	// serialization, the printer).
	ErrIO ErrorKind = "io"
	// ErrInternal covers lock poisoning and recovered worker panics.
	ErrInternal ErrorKind = "internal"
)

// Error is the first-class error value of the engine. It carries the
// offending ErrorKind, a human message, and enough provenance (job/stage
// identifiers) for the printer collaborator to render it once.
type Error struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	JobID    string    `json:"job_id,omitempty"`
	StageID  string    `json:"stage_id,omitempty"`
	Time     time.Time `json:"time"`
	wrapped  error
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Time:    time.Now(),
	}
}

// Wrap attaches provenance to an existing error without losing its
// identity, mirroring fmt.Errorf's %w but keeping the ErrorKind explicit.
func Wrap(kind ErrorKind, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{
		Kind:    kind,
		Message: err.Error(),
		Time:    time.Now(),
		wrapped: err,
	}
}

// Unwrap lets errors.Is/errors.As see through to a wrapped cause.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// WithJob annotates the error with the job/stage it was produced by.
func (e *Error) WithJob(jobID, stageID string) *Error {
	out := *e
	out.JobID = jobID
	out.StageID = stageID
	return &out
}

func (e *Error) Error() string {
	bytez, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"kind":%q,"message":%q}`, e.Kind, e.Message)
	}
	return string(bytez)
}
