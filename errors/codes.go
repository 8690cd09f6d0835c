package errors

import "net/http"

// Class groups error codes by how callers should react to them.
type Class string

const (
	// ClassAuth covers authentication and authorization failures.
	ClassAuth Class = "auth"

	// ClassValidation covers malformed or out-of-range input,
	// including foreign ids that do not resolve.
	ClassValidation Class = "validation"

	// ClassMissing covers references to entities that do not exist.
	ClassMissing Class = "missing"

	// ClassConflict covers operations rejected because of current state.
	ClassConflict Class = "conflict"

	// ClassInternal covers unexpected failures: persistence errors,
	// transport errors, bugs. Detail is logged, never sent to clients.
	ClassInternal Class = "internal"
)

// String returns the string representation of the class.
func (c Class) String() string {
	return string(c)
}

// Code identifies a specific failure type.
type Code string

// Error codes for the task tracker core.
const (
	// CodeUnauthenticated indicates a missing or invalid credential.
	CodeUnauthenticated Code = "UNAUTHENTICATED"

	// CodeExpired indicates a well-formed credential past its expiry.
	// Distinguished from CodeUnauthenticated so that callers can run a
	// refresh-and-retry flow; a malformed credential must not trigger one.
	CodeExpired Code = "EXPIRED"

	// CodeForbidden indicates an authenticated actor lacking permission
	// for the requested action or field set.
	CodeForbidden Code = "FORBIDDEN"

	// CodeNotFound indicates the referenced entity does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidReference indicates a foreign id that does not resolve.
	CodeInvalidReference Code = "INVALID_REFERENCE"

	// CodeValidation indicates a shape or range violation on input fields.
	CodeValidation Code = "VALIDATION"

	// CodeConflict indicates a conflicting operation or state.
	CodeConflict Code = "CONFLICT"

	// CodeInternal indicates an unexpected internal failure.
	CodeInternal Code = "INTERNAL"
)

// String returns the string representation of the code.
func (c Code) String() string {
	return string(c)
}

// DefaultClass returns the class an error code belongs to.
func (c Code) DefaultClass() Class {
	switch c {
	case CodeUnauthenticated, CodeExpired, CodeForbidden:
		return ClassAuth
	case CodeValidation, CodeInvalidReference:
		return ClassValidation
	case CodeNotFound:
		return ClassMissing
	case CodeConflict:
		return ClassConflict
	default:
		return ClassInternal
	}
}

// HTTPStatus maps an error code to the status used by the one-shot
// request surface. The connection path never sends these; it emits a
// task_error event carrying a message only.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated, CodeExpired:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeInvalidReference:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// codeDescriptions provides default messages for error codes.
var codeDescriptions = map[Code]string{
	CodeUnauthenticated:  "authentication required",
	CodeExpired:          "credential expired",
	CodeForbidden:        "access denied",
	CodeNotFound:         "resource not found",
	CodeInvalidReference: "referenced entity does not exist",
	CodeValidation:       "invalid input provided",
	CodeConflict:         "conflicting operation",
	CodeInternal:         "internal error",
}

// Description returns the default human-readable message for the code.
func (c Code) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
