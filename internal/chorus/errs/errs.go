// Package errs defines Chorus's error taxonomy: a small set of sentinel
// errors plus a carrier type that attaches a machine-readable code and
// optional structured detail, translated to the HTTP envelope at the
// transport boundary.
package errs

import (
	"errors"
	"fmt"
)

// Code is one of the error codes in the Chorus error envelope.
type Code string

const (
	CodeNotFound                Code = "NOT_FOUND"
	CodeValidationError         Code = "VALIDATION_ERROR"
	CodeInvalidStatusTransition Code = "INVALID_STATUS_TRANSITION"
	CodeInvalidReadinessState   Code = "INVALID_READINESS_STATE"
	CodeLockConflict            Code = "LOCK_CONFLICT"
	CodeInternalError           Code = "INTERNAL_ERROR"
)

// Sentinel errors that callers match with errors.Is. Err wraps one of
// these to classify a failure; callers that only care about the class
// should match the sentinel, not the Code.
var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation error")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidReadinessState   = errors.New("invalid readiness state")
	ErrLockConflict            = errors.New("lock conflict")
	ErrCallerMismatch          = errors.New("caller label does not match lock holder")
)

// Err is a Chorus domain error: a sentinel class, a code, a human message,
// and optional structured detail for the error envelope's "details" field.
type Err struct {
	Sentinel error
	Code     Code
	Message  string
	Details  map[string]any
}

func (e *Err) Error() string {
	return e.Message
}

func (e *Err) Unwrap() error {
	return e.Sentinel
}

// NotFound builds a NOT_FOUND error.
func NotFound(format string, args ...any) *Err {
	return &Err{Sentinel: ErrNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a VALIDATION_ERROR error.
func Validation(format string, args ...any) *Err {
	return &Err{Sentinel: ErrValidation, Code: CodeValidationError, Message: fmt.Sprintf(format, args...)}
}

// InvalidStatusTransition builds an INVALID_STATUS_TRANSITION error.
func InvalidStatusTransition(format string, args ...any) *Err {
	return &Err{Sentinel: ErrInvalidStatusTransition, Code: CodeInvalidStatusTransition, Message: fmt.Sprintf(format, args...)}
}

// InvalidReadinessState builds an INVALID_READINESS_STATE error, optionally
// carrying the computed readiness in Details.
func InvalidReadinessState(readiness string, format string, args ...any) *Err {
	return &Err{
		Sentinel: ErrInvalidReadinessState,
		Code:     CodeInvalidReadinessState,
		Message:  fmt.Sprintf(format, args...),
		Details:  map[string]any{"readiness": readiness},
	}
}

// CallerMismatch builds a VALIDATION_ERROR error carrying the distinct
// ErrCallerMismatch sentinel, so the transport boundary can map it to 403
// instead of the 422 every other validation failure gets.
func CallerMismatch(format string, args ...any) *Err {
	return &Err{Sentinel: ErrCallerMismatch, Code: CodeValidationError, Message: fmt.Sprintf(format, args...)}
}

// LockConflict builds a LOCK_CONFLICT error.
func LockConflict(format string, args ...any) *Err {
	return &Err{Sentinel: ErrLockConflict, Code: CodeLockConflict, Message: fmt.Sprintf(format, args...)}
}

// As extracts a *Err from err, if any wraps one.
func As(err error) (*Err, bool) {
	var e *Err
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
