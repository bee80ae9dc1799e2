// Package apperr provides coded errors shared by the chat server and console.
//
// Codes follow {domain}.{error}. They are stable and travel to clients in the
// "code" field of error responses and websocket error events, so a client can
// rebuild the same error kind on its side of the wire.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeValidation   = "chat.validation"    // Empty reply, bad ids, bad paging
	CodeNotFound     = "chat.not_found"     // Session does not exist
	CodeConflict     = "chat.conflict"      // Session already claimed by another admin
	CodeInvalidState = "chat.invalid_state" // Lifecycle transition not allowed
	CodeForbidden    = "chat.forbidden"     // Admin is not the session assignee

	CodeAuthInvalid = "auth.invalid"

	CodeDisconnected = "transport.disconnected"
	CodeFetchFailed  = "transport.fetch_failed"

	CodeInternal = "error.internal"
)

// CodedError wraps an error with a stable code.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// Is matches any CodedError carrying the same code, so sentinel values such
// as ErrConflict work with errors.Is regardless of message.
func (e *CodedError) Is(target error) bool {
	var t *CodedError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrValidation   = &CodedError{Code: CodeValidation}
	ErrNotFound     = &CodedError{Code: CodeNotFound}
	ErrConflict     = &CodedError{Code: CodeConflict}
	ErrInvalidState = &CodedError{Code: CodeInvalidState}
	ErrForbidden    = &CodedError{Code: CodeForbidden}
	ErrDisconnected = &CodedError{Code: CodeDisconnected}
	ErrFetchFailed  = &CodedError{Code: CodeFetchFailed}
)

// New creates a CodedError.
func New(code, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// Wrap creates a CodedError around a cause.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{Code: code, Message: message, Cause: cause}
}

// Validation is shorthand for a chat.validation error.
func Validation(message string) *CodedError {
	return New(CodeValidation, message)
}

// Code extracts the code from err, or CodeInternal for foreign errors.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// Message extracts a human-readable message from err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return err.Error()
}

// HTTPStatus maps an error to the status code the REST API answers with.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidState:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeAuthInvalid:
		return http.StatusUnauthorized
	case CodeDisconnected, CodeFetchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus rebuilds an error from a REST response on the client side.
func FromStatus(status int, code, message string) *CodedError {
	if code == "" {
		switch status {
		case http.StatusBadRequest:
			code = CodeValidation
		case http.StatusNotFound:
			code = CodeNotFound
		case http.StatusConflict:
			code = CodeConflict
		case http.StatusForbidden:
			code = CodeForbidden
		case http.StatusUnauthorized:
			code = CodeAuthInvalid
		default:
			code = CodeFetchFailed
		}
	}
	if code == CodeInternal {
		code = CodeFetchFailed
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return New(code, message)
}
