package thumbnail

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure by the step that produced it.
type Kind string

const (
	ValidationError   Kind = "ValidationError"
	StorageReadError  Kind = "StorageReadError"
	DecodeError       Kind = "DecodeError"
	StorageWriteError Kind = "StorageWriteError"
	UnexpectedError   Kind = "UnexpectedError"
)

// Error is the error carried by a failed ResizeResult.
type Error struct {
	Kind Kind
	// Op names the pipeline step, e.g. "fetch" or "store".
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or UnexpectedError when err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return UnexpectedError
}
