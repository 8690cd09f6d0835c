package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the
// error chain. If err is nil, Wrap returns nil. If err is already a
// structured Error, its code, class and ids are preserved. Other
// errors become internal errors wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		wrapped := &Error{
			code:      appErr.code,
			class:     appErr.class,
			message:   message,
			cause:     err,
			fields:    appErr.Fields(),
			userID:    appErr.userID,
			taskID:    appErr.taskID,
			timestamp: appErr.timestamp,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	return New(CodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error, replacing its code.
func WrapWithCode(err error, code Code, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsError extracts a structured Error from an error chain.
// Returns nil if no structured Error is found.
func AsError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// Is reports whether any error in the chain has the given code.
func Is(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.code == code
	}
	return false
}

// IsClass reports whether any error in the chain has the given class.
func IsClass(err error, class Class) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.class == class
	}
	return false
}

// CodeOf extracts the error code from an error. Unstructured errors
// report CodeInternal so that callers always have a mappable code.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.code
	}
	return CodeInternal
}

// HTTPStatus returns the HTTP status for an error's code.
func HTTPStatus(err error) int {
	return CodeOf(err).HTTPStatus()
}

// ClientMessage returns the message safe to expose to clients.
// Unstructured errors collapse to the generic internal description.
func ClientMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return CodeInternal.Description()
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}
