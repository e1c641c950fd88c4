package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies domain failures so callers can react without string matching.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindState      Kind = "state"
	KindStorage    Kind = "storage"
)

// Error is the ledger error type. Two errors match under errors.Is when their codes match.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return t.Code == e.Code
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// NotFound declares a missing-entity sentinel.
func NotFound(code, msg string) *Error { return newError(KindNotFound, code, msg) }

// Conflict declares a uniqueness sentinel.
func Conflict(code, msg string) *Error { return newError(KindConflict, code, msg) }

// Forbidden declares an authorisation sentinel.
func Forbidden(code, msg string) *Error { return newError(KindForbidden, code, msg) }

// State declares a lifecycle sentinel.
func State(code, msg string) *Error { return newError(KindState, code, msg) }

// Invalid declares a validation sentinel without field detail.
func Invalid(code, msg string) *Error { return newError(KindValidation, code, msg) }

// InvalidField declares a validation sentinel bound to one field.
func InvalidField(code, field, msg string) *Error {
	e := newError(KindValidation, code, msg)
	e.Fields = map[string]string{field: msg}
	return e
}

// Storage wraps a driver failure so it is never mistaken for a domain error.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var domain *Error
	if errors.As(err, &domain) {
		return err
	}
	return &Error{Kind: KindStorage, Code: CodeStorage, Message: op, cause: err}
}

// CodeValidation is shared by every field-level validation failure.
const (
	CodeValidation = "validation_failed"
	CodeStorage    = "storage_failure"
)

// ErrValidation matches any field-level validation failure.
var ErrValidation = newError(KindValidation, CodeValidation, "validation failed")

// ErrStorage matches any wrapped storage failure.
var ErrStorage = newError(KindStorage, CodeStorage, "storage failure")

// ValidationError builds a field-level validation failure.
func ValidationError(fields map[string]string) *Error {
	e := newError(KindValidation, CodeValidation, "validation failed")
	e.Fields = fields
	return e
}

// FieldError builds a validation failure for a single field.
func FieldError(field, format string, args ...any) *Error {
	return ValidationError(map[string]string{field: fmt.Sprintf(format, args...)})
}

// KindOf classifies err; errors that are not ledger errors are storage failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var domain *Error
	if errors.As(err, &domain) {
		return domain.Kind
	}
	return KindStorage
}

// Lifecycle sentinels shared by the movement and transaction ledgers.
var (
	// ErrNoActivePeriod indicates no period covers today.
	ErrNoActivePeriod = State("no_active_period", "no accounting period covers today")
	// ErrPeriodClosed indicates the period is locked for the user.
	ErrPeriodClosed = State("period_closed", "period is closed for this user")
	// ErrForbidden indicates the actor lacks the capability.
	ErrForbidden = Forbidden("forbidden", "operation not permitted for this user")
	// ErrUserNotFound indicates the referenced user does not exist or is inactive.
	ErrUserNotFound = NotFound("user_not_found", "user not found")
)
