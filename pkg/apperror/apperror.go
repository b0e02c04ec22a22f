// Package apperror defines the stable error kinds surfaced by the ticketing core.
// Handlers translate a kind into an HTTP status via pkg/response.
package apperror

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. Its string form is the stable API error code.
type Kind string

const (
	KindNotFound                  Kind = "not_found"
	KindForbidden                 Kind = "forbidden"
	KindConflict                  Kind = "conflict"
	KindCapacityExceeded          Kind = "capacity_exceeded"
	KindValidation                Kind = "validation_error"
	KindPaymentVerificationFailed Kind = "payment_verification_failed"
	KindGatewayUnavailable        Kind = "gateway_unavailable"
	KindInternal                  Kind = "internal"
)

// Sentinels for errors.Is matching. Every *Error of a kind matches its sentinel.
var (
	ErrNotFound                  = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden                 = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrConflict                  = &Error{Kind: KindConflict, Message: "conflict"}
	ErrCapacityExceeded          = &Error{Kind: KindCapacityExceeded, Message: "event capacity full"}
	ErrValidation                = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrPaymentVerificationFailed = &Error{Kind: KindPaymentVerificationFailed, Message: "payment verification failed"}
	ErrGatewayUnavailable        = &Error{Kind: KindGatewayUnavailable, Message: "payment gateway unavailable"}
)

// Error is a classified failure with a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New returns an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err under kind, keeping it reachable through errors.Unwrap.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, ErrConflict) matches any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message of err.
// Unclassified errors never leak their text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

func NotFound(msg string) *Error         { return New(KindNotFound, msg) }
func Forbidden(msg string) *Error        { return New(KindForbidden, msg) }
func Conflict(msg string) *Error         { return New(KindConflict, msg) }
func Validation(msg string) *Error       { return New(KindValidation, msg) }
func CapacityExceeded(msg string) *Error { return New(KindCapacityExceeded, msg) }
