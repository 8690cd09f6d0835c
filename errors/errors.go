// Package errors provides the structured error taxonomy shared by the
// request and connection entry points.
//
// Handlers return typed errors; the HTTP adapter maps them to status
// codes and structured bodies, while the connection adapter reduces
// them to a task_error event. Internal-class errors carry their cause
// for logging but expose only a generic message to clients.
package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Error is a structured error with a stable code and class.
type Error struct {
	code      Code
	class     Class
	message   string
	cause     error
	fields    []string
	userID    string
	taskID    string
	timestamp time.Time
}

// Ensure Error implements error and json.Marshaler.
var (
	_ error          = (*Error)(nil)
	_ json.Marshaler = (*Error)(nil)
)

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() Code {
	return e.code
}

// Class returns the error class.
func (e *Error) Class() Class {
	return e.class
}

// Message returns the client-facing message without the cause chain.
// Internal errors always report their generic description so that
// persistence and transport detail never leaks to clients.
func (e *Error) Message() string {
	if e.class == ClassInternal {
		return CodeInternal.Description()
	}
	return e.message
}

// Fields returns the input fields implicated in the failure, if any.
func (e *Error) Fields() []string {
	return append([]string(nil), e.fields...)
}

// UserID returns the related user id, if set.
func (e *Error) UserID() string {
	return e.userID
}

// TaskID returns the related task id, if set.
func (e *Error) TaskID() string {
	return e.taskID
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// errorJSON is the JSON representation of an Error.
type errorJSON struct {
	Code      Code     `json:"code"`
	Class     Class    `json:"class"`
	Message   string   `json:"message"`
	Fields    []string `json:"fields,omitempty"`
	UserID    string   `json:"userId,omitempty"`
	TaskID    string   `json:"taskId,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// MarshalJSON implements json.Marshaler. The cause is deliberately
// omitted: serialized errors cross the client boundary.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:    e.code,
		Class:   e.class,
		Message: e.Message(),
		Fields:  e.fields,
		UserID:  e.userID,
		TaskID:  e.taskID,
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithClass overrides the default class for the code.
func WithClass(class Class) Option {
	return func(e *Error) {
		e.class = class
	}
}

// WithField records an input field implicated in the failure.
func WithField(field string) Option {
	return func(e *Error) {
		e.fields = append(e.fields, field)
	}
}

// WithFields records multiple implicated input fields.
func WithFields(fields ...string) Option {
	return func(e *Error) {
		e.fields = append(e.fields, fields...)
	}
}

// WithUserID sets the related user id.
func WithUserID(id string) Option {
	return func(e *Error) {
		e.userID = id
	}
}

// WithTaskID sets the related task id.
func WithTaskID(id string) Option {
	return func(e *Error) {
		e.taskID = id
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		class:     code.DefaultClass(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code Code, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// Unauthenticated creates an unauthenticated error.
func Unauthenticated(message string, opts ...Option) *Error {
	return New(CodeUnauthenticated, message, opts...)
}

// Expired creates a credential-expiry error.
func Expired(message string, opts ...Option) *Error {
	return New(CodeExpired, message, opts...)
}

// Forbidden creates a forbidden error.
func Forbidden(message string, opts ...Option) *Error {
	return New(CodeForbidden, message, opts...)
}

// NotFound creates a not found error.
func NotFound(message string, opts ...Option) *Error {
	return New(CodeNotFound, message, opts...)
}

// InvalidReference creates an unresolved-reference error.
func InvalidReference(message string, opts ...Option) *Error {
	return New(CodeInvalidReference, message, opts...)
}

// Validation creates a validation error.
func Validation(message string, opts ...Option) *Error {
	return New(CodeValidation, message, opts...)
}

// Conflict creates a conflict error.
func Conflict(message string, opts ...Option) *Error {
	return New(CodeConflict, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(CodeInternal, message, opts...)
}
