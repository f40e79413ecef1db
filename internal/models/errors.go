package models

import (
	"fmt"

	"golang.org/x/xerrors"
)

type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindInvalidDeadline
	KindDuplicateExternalID
	KindNotJoinable
	KindNotSubmittable
	KindDeadlineExpired
	KindMalformedEvent
	KindMissingFields
	KindCapacityReached
	KindInvalidComputePower
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidDeadline:
		return "InvalidDeadline"
	case KindDuplicateExternalID:
		return "DuplicateExternalId"
	case KindNotJoinable:
		return "NotJoinable"
	case KindNotSubmittable:
		return "NotSubmittable"
	case KindDeadlineExpired:
		return "DeadlineExpired"
	case KindMalformedEvent:
		return "MalformedEvent"
	case KindMissingFields:
		return "MissingFields"
	case KindCapacityReached:
		return "CapacityReached"
	case KindInvalidComputePower:
		return "InvalidComputePower"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a domain failure returned to the immediate caller.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidDeadline     = &Error{Kind: KindInvalidDeadline}
	ErrDuplicateExternalID = &Error{Kind: KindDuplicateExternalID}
	ErrNotJoinable         = &Error{Kind: KindNotJoinable}
	ErrNotSubmittable      = &Error{Kind: KindNotSubmittable}
	ErrDeadlineExpired     = &Error{Kind: KindDeadlineExpired}
	ErrMalformedEvent      = &Error{Kind: KindMalformedEvent}
	ErrMissingFields       = &Error{Kind: KindMissingFields}
	ErrCapacityReached     = &Error{Kind: KindCapacityReached}
	ErrInvalidComputePower = &Error{Kind: KindInvalidComputePower}
)

func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the domain kind carried by err, or 0 for infrastructure errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind
	}
	return 0
}
