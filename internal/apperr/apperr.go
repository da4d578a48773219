// Package apperr defines the typed failures shared by services, adapters and handlers.
// Callers branch on Kind rather than on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// Configuration means missing credentials or settings. Not retried.
	Configuration Kind = "configuration"
	// Validation means the input is incomplete or inconsistent. Reported inline.
	Validation Kind = "validation"
	// Transport means a provider rejected the call or could not be reached.
	Transport Kind = "transport"
	// Rendering means the document could not be produced.
	Rendering Kind = "rendering"
	// NotFound means the addressed record does not exist.
	NotFound Kind = "not_found"
)

// Error is the concrete failure type. Fields carries per-field validation codes.
type Error struct {
	Kind   Kind
	Op     string
	Msg    string
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the human readable part, without the operation prefix.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Config builds a configuration error.
func Config(op, msg string) error {
	return &Error{Kind: Configuration, Op: op, Msg: msg}
}

// Invalid builds a validation error with optional field codes.
func Invalid(op, msg string, fields map[string]string) error {
	return &Error{Kind: Validation, Op: op, Msg: msg, Fields: fields}
}

// TransportErr wraps a provider failure.
func TransportErr(op string, err error) error {
	return &Error{Kind: Transport, Op: op, Err: err}
}

// Render wraps a document generation failure.
func Render(op string, err error) error {
	return &Error{Kind: Rendering, Op: op, Err: err}
}

// Missing builds a not-found error.
func Missing(op, msg string) error {
	return &Error{Kind: NotFound, Op: op, Msg: msg}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// MessageOf returns a user facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// FieldsOf returns validation field codes, if any.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
