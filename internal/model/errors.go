package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures surfaced by the core.
type ErrorCode string

const (
	// CodeValidation indicates a constraint violation on create/update.
	CodeValidation ErrorCode = "VALIDATION"

	// CodeNotFound indicates the addressed record does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeDenied indicates the actor's effective grant set does not cover the action.
	CodeDenied ErrorCode = "AUTHORIZATION_DENIED"

	// CodeCascadeConflict indicates a delete blocked by non-cascading children.
	CodeCascadeConflict ErrorCode = "CASCADE_CONFLICT"

	// CodeConcurrency indicates a stale write or a lost checkpoint race. Retryable.
	CodeConcurrency ErrorCode = "CONCURRENCY_CONFLICT"

	// CodeSerialization indicates a persisted blob could not be decoded.
	CodeSerialization ErrorCode = "SERIALIZATION"
)

// Reasons refine an ErrorCode.
const (
	ReasonDuplicateName     = "DUPLICATE_NAME"
	ReasonDuplicateValue    = "DUPLICATE_VALUE"
	ReasonRequired          = "REQUIRED"
	ReasonDanglingReference = "DANGLING_REFERENCE"
	ReasonSingleParent      = "SINGLE_PARENT"
	ReasonInvalidEnum       = "INVALID_ENUM"
	ReasonInvalidValue      = "INVALID_VALUE"
	ReasonInvalidTransition = "INVALID_TRANSITION"
	ReasonOwnerChange       = "OWNER_CHANGE"
	ReasonImmutable         = "IMMUTABLE"
	ReasonStaleWrite        = "STALE_WRITE"
	ReasonNotDue            = "NOT_DUE"
	ReasonRestricted        = "RESTRICTED"
	ReasonNoGrant           = "NO_GRANT"
	ReasonPolicy            = "POLICY"
	ReasonNoPrincipal       = "NO_PRINCIPAL"
	ReasonBadCredentials    = "BAD_CREDENTIALS"
)

// Error is the single error type of the core.
//
// Callers branch on Code via the IsXxx helpers, which use errors.As so that
// wrapped errors are recognised.
type Error struct {
	Code    ErrorCode
	Reason  string
	Kind    Kind
	ID      string
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Reason != "" {
		msg += "/" + e.Reason
	}
	msg += ": " + e.Message
	switch {
	case e.Kind != "" && e.ID != "":
		msg += fmt.Sprintf(" (%s %s)", e.Kind, e.ID)
	case e.Kind != "":
		msg += fmt.Sprintf(" (%s)", e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError creates a VALIDATION error.
func NewValidationError(reason string, kind Kind, id, field, message string) *Error {
	return &Error{Code: CodeValidation, Reason: reason, Kind: kind, ID: id, Field: field, Message: message}
}

// NewNotFoundError creates a NOT_FOUND error.
func NewNotFoundError(kind Kind, id string) *Error {
	return &Error{Code: CodeNotFound, Kind: kind, ID: id, Message: "record not found"}
}

// NewDeniedError creates an AUTHORIZATION_DENIED error.
func NewDeniedError(reason, actor string, action Right, kind Kind, id string) *Error {
	return &Error{
		Code:    CodeDenied,
		Reason:  reason,
		Kind:    kind,
		ID:      id,
		Message: fmt.Sprintf("actor %q may not %s", actor, action),
	}
}

// NewCascadeConflict creates a CASCADE_CONFLICT error for a parent still
// referenced by a child that is not cascade-configured.
func NewCascadeConflict(kind Kind, id string, child Kind, column string, count int) *Error {
	return &Error{
		Code:    CodeCascadeConflict,
		Reason:  ReasonRestricted,
		Kind:    kind,
		ID:      id,
		Field:   column,
		Message: fmt.Sprintf("%d %s record(s) still reference it via %s", count, child, column),
	}
}

// NewConcurrencyError creates a CONCURRENCY_CONFLICT error.
func NewConcurrencyError(reason string, kind Kind, id, message string) *Error {
	return &Error{Code: CodeConcurrency, Reason: reason, Kind: kind, ID: id, Message: message}
}

// NewSerializationError creates a SERIALIZATION error.
func NewSerializationError(id string, err error) *Error {
	return &Error{Code: CodeSerialization, ID: id, Message: "cannot decode persisted state", Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsValidation reports whether err is a VALIDATION error.
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsDenied reports whether err is an AUTHORIZATION_DENIED error.
func IsDenied(err error) bool { return hasCode(err, CodeDenied) }

// IsCascadeConflict reports whether err is a CASCADE_CONFLICT error.
func IsCascadeConflict(err error) bool { return hasCode(err, CodeCascadeConflict) }

// IsConcurrencyConflict reports whether err is a CONCURRENCY_CONFLICT error.
func IsConcurrencyConflict(err error) bool { return hasCode(err, CodeConcurrency) }

// IsSerialization reports whether err is a SERIALIZATION error.
func IsSerialization(err error) bool { return hasCode(err, CodeSerialization) }

// ReasonOf returns the Reason of a model error, or "" for other errors.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
