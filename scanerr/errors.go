// Package scanerr defines the error taxonomy shared by the generator, the
// detectors and the session controller.
//
// Every failure reported to a caller carries a stable Code and a human
// readable message. Codes are part of the wire contract; the API layer maps
// them onto problem statuses.
package scanerr

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	// generation path
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeEncoding        Code = "ENCODING_ERROR"
	CodeFilter          Code = "FILTER_ERROR"
	CodeImage           Code = "IMAGE_ERROR"
	CodeConversion      Code = "CONVERSION_ERROR"

	// recognition path
	CodeInvalidImage Code = "INVALID_IMAGE"
	CodeDetection    Code = "DETECTION_ERROR"

	// session path
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeCameraDenied     Code = "CAMERA_DENIED"
	CodeSetupFailed      Code = "SETUP_FAILED"
	CodeUnavailable      Code = "UNAVAILABLE"
	CodeBusy             Code = "BUSY"
)

// Error is the structured error type used throughout the module.
type Error struct {
	Code    Code
	Op      string // operation name, e.g. "generate" or "live.bind-output"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error without an underlying cause.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Wrap creates an Error around err. The message defaults to err's text.
// Returns nil when err is nil.
func Wrap(code Code, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Message: err.Error(), Err: err}
}

// Wrapf is like Wrap with an explicit message.
func Wrapf(code Code, op string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the Code carried by err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
