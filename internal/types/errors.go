package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies engine failures at the boundary. Codes mirror the
// wire-level taxonomy consumed by callers.
type ErrorCode string

const (
	CodeInvalidRequest         ErrorCode = "INVALID_REQUEST"
	CodeNotEnabled             ErrorCode = "NOT_ENABLED"
	CodeDBError                ErrorCode = "DB_ERROR"
	CodeDictionaryNotReady     ErrorCode = "DICTIONARY_NOT_READY"
	CodeLLMDisabled            ErrorCode = "LLM_DISABLED"
	CodeLLMEndpointUnavailable ErrorCode = "LLM_ENDPOINT_UNAVAILABLE"
	CodeLLMTimeout             ErrorCode = "LLM_TIMEOUT"
	CodeRateLimited            ErrorCode = "RATE_LIMITED"
)

// Error is a coded engine error. Detail carries provider output or other
// diagnostic context and is safe to surface to the caller.
type Error struct {
	Code    ErrorCode
	Message string
	Detail  string
	wrapped error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// NewError builds a coded error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorDetail builds a coded error with diagnostic detail.
func NewErrorDetail(code ErrorCode, message, detail string) *Error {
	return &Error{Code: code, Message: message, Detail: detail}
}

// WrapError builds a coded error around an underlying cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &Error{Code: code, Message: message, Detail: detail, wrapped: cause}
}

// CodeOf extracts the ErrorCode from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
