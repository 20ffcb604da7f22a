// Package errors provides the coded errors depscan returns.
//
// Detectors, the scan orchestrator and the CLI tag every error they create
// with a [Code]. The scanner uses the code to decide whether a file failed,
// was unsupported or the whole scan was cancelled; the CLI uses it to pick
// an exit status and message.
//
// Codes group by prefix: INVALID_* for bad input, NOT_FOUND and
// FILE_NOT_FOUND for missing resources, and the execution codes
// COMMAND_FAILED, CANCELED, UNSUPPORTED and INTERNAL_ERROR.
//
//	if err := d.Detect(ctx, req); errors.Is(err, errors.ErrCodeUnsupported) {
//	    continue
//	}
//
//	return errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode %s", location)
package errors

import (
	"errors"
	"fmt"
)

// Code identifies an error category.
type Code string

const (
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidPath     Code = "INVALID_PATH"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	ErrCodeCommandFailed Code = "COMMAND_FAILED"
	ErrCodeCanceled      Code = "CANCELED"
	ErrCodeUnsupported   Code = "UNSUPPORTED"
	ErrCodeInternal      Code = "INTERNAL_ERROR"
)

// Error is an error tagged with a [Code]. Cause is optional.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.detail()
}

// detail is the message and cause without the code prefix.
func (e *Error) detail() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns an Error with code and a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error with code that wraps cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	e := New(code, format, args...)
	e.Cause = cause
	return e
}

// GetCode returns the code of the outermost *Error in err's chain, or ""
// when there is none.
func GetCode(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// Is reports whether the outermost *Error in err's chain has code.
func Is(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// UserMessage returns err for display: the code prefix of the outermost
// *Error is dropped, its message and cause are kept.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.detail()
	}
	return err.Error()
}
