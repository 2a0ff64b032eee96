package reconcile

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors for callers and transports.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAlreadyVerified
	KindDuplicateReference
	KindSignature
	KindUpstream
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAlreadyVerified:
		return "already_verified"
	case KindDuplicateReference:
		return "duplicate_reference"
	case KindSignature:
		return "signature_error"
	case KindUpstream:
		return "upstream_error"
	case KindRejected:
		return "gateway_rejected"
	default:
		return "internal_error"
	}
}

// Error is returned by every Engine operation that fails.
type Error struct {
	Kind    Kind
	Op      string
	OrderID string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.OrderID != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.OrderID, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether repeating the operation may succeed. Only upstream failures are.
func Retryable(err error) bool {
	return KindOf(err) == KindUpstream
}

// Message is the caller-facing text of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func newError(kind Kind, op, orderID, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, OrderID: orderID, Msg: msg, Err: err}
}
