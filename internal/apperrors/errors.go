package apperrors

import (
	"errors"
	"fmt"
)

// AppError is a domain error with a stable code. Message is safe to show to
// API callers; Cause is never serialized.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches on code so that errors.Is(err, apperrors.ErrBanned) works for
// any banned error regardless of message or cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func Invalid(msg string) error {
	return New(CodeInvalid, msg)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthorized, msg)
}

func Forbidden(msg string) error {
	return New(CodeForbidden, msg)
}

func Conflict(msg string) error {
	return New(CodeConflict, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func InvalidState(msg string) error {
	return New(CodeInvalidState, msg)
}

func Internal(cause error) error {
	return Wrap(CodeInternal, "internal error", cause)
}

// Code-only targets for errors.Is.
var (
	ErrInvalid      = &AppError{Code: CodeInvalid}
	ErrUnauthorized = &AppError{Code: CodeUnauthorized}
	ErrForbidden    = &AppError{Code: CodeForbidden}
	ErrConflict     = &AppError{Code: CodeConflict}
	ErrNotFound     = &AppError{Code: CodeNotFound}
	ErrBanned       = &AppError{Code: CodeBanned}
	ErrInvalidState = &AppError{Code: CodeInvalidState}
	ErrInternal     = &AppError{Code: CodeInternal}
)

// CodeOf returns the code carried by err, or CodeInternal for anything that
// is not an AppError.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// PublicMessage returns the caller-visible text for err. Internal failures
// and bans collapse to fixed strings so nothing about storage or ban lists
// leaks to clients.
func PublicMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code == CodeInternal {
		return "internal server error"
	}
	if appErr.Code == CodeBanned {
		return bannedMessage
	}
	return appErr.Message
}
