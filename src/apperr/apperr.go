// Package apperr defines the user-visible error taxonomy. Every failure that
// reaches a caller carries a stable Code and a human-readable message; anything
// else is reported as CodeInternal without its details.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInvalidRequest   Code = "INVALID_REQUEST"
	CodeNotFound         Code = "RESOURCE_NOT_FOUND"
	CodeForbidden        Code = "FORBIDDEN"
	CodeDistance         Code = "DISTANCE_COMPUTATION_ERROR"
	CodeTargetBusy       Code = "TARGET_BUSY"
	CodeInternal         Code = "INTERNAL_ERROR"
	internalErrorMessage      = "internal error"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func InvalidRequest(format string, args ...any) *Error {
	return newError(CodeInvalidRequest, nil, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(CodeNotFound, nil, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(CodeForbidden, nil, format, args...)
}

func Distance(err error, format string, args ...any) *Error {
	return newError(CodeDistance, err, format, args...)
}

func TargetBusy(err error, format string, args ...any) *Error {
	return newError(CodeTargetBusy, err, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Public returns the code and message that are safe to show to a caller.
func Public(err error) (Code, string) {
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Code, e.Message
	}
	return CodeInternal, internalErrorMessage
}

// Retriable reports whether the caller may retry the same request unchanged.
func Retriable(err error) bool {
	return CodeOf(err) == CodeTargetBusy
}
