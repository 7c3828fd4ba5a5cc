// Package failure classifies pipeline errors by the stage that produced them.
//
// Stages wrap their errors with a Kind; the message text is never altered so
// the pipeline can report it verbatim.
package failure

import (
	"errors"
	"fmt"
)

// Kind names a class of pipeline failure.
type Kind string

const (
	IO               Kind = "io"
	Decode           Kind = "decode"
	Resample         Kind = "resample"
	ModelUnavailable Kind = "model_unavailable"
	Detector         Kind = "detector"
	Encode           Kind = "encode"
	Internal         Kind = "internal"
)

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with kind. A nil err stays nil. An error that already carries
// a Kind keeps it.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// Errorf formats an error and tags it with kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind carried by err, or Internal when there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
