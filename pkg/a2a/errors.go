package a2a

import "fmt"

/*
Kind enumerates the error taxonomy shared by the JSON-RPC and gRPC
surfaces. Each Kind maps to exactly one JSON-RPC code and one gRPC status;
handler-error is the one kind that never crosses the RPC boundary as an
error response — it becomes a terminal failed status-update instead.
*/
type Kind string

const (
	KindInvalidArgument    Kind = "invalid-argument"
	KindIdentifierMismatch Kind = "identifier-mismatch"
	KindNotFound           Kind = "not-found"
	KindFailedPrecondition Kind = "failed-precondition"
	KindUnauthenticated    Kind = "unauthenticated"
	KindInternal           Kind = "internal"
	KindHandlerError       Kind = "handler-error"
)

// Error is the domain error type produced by every core component. Surface
// adapters (pkg/jsonrpc, pkg/grpcsurface) translate Kind into their own
// wire codes rather than re-deriving it from Message text.
type Error struct {
	Kind    Kind
	Message string
	Data    any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func ErrInvalidArgument(format string, args ...any) *Error {
	return NewError(KindInvalidArgument, format, args...)
}

func ErrIdentifierMismatch(format string, args ...any) *Error {
	return NewError(KindIdentifierMismatch, format, args...)
}

func ErrNotFound(format string, args ...any) *Error {
	return NewError(KindNotFound, format, args...)
}

func ErrFailedPrecondition(format string, args ...any) *Error {
	return NewError(KindFailedPrecondition, format, args...)
}

func ErrUnauthenticated(format string, args ...any) *Error {
	return NewError(KindUnauthenticated, format, args...)
}

func ErrInternal(format string, args ...any) *Error {
	return NewError(KindInternal, format, args...)
}

// JSONRPCCode returns the JSON-RPC 2.0 error code for the receiver's Kind.
// handler-error has no RPC code: callers must never reach this path for it.
func (e *Error) JSONRPCCode() int {
	switch e.Kind {
	case KindInvalidArgument:
		return -32602
	case KindIdentifierMismatch, KindFailedPrecondition:
		return -32005
	case KindNotFound:
		return -32001
	case KindUnauthenticated:
		return -32003
	case KindInternal:
		return -32000
	default:
		return -32000
	}
}

// GRPCStatus returns the gRPC canonical status name for the receiver's Kind.
func (e *Error) GRPCStatus() string {
	switch e.Kind {
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	case KindIdentifierMismatch, KindFailedPrecondition:
		return "FAILED_PRECONDITION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindInternal:
		return "INTERNAL"
	default:
		return "INTERNAL"
	}
}

// AsError reports whether err is a *a2a.Error and returns it if so. It is a
// plain type assertion: an *Error wrapped inside another error is not found.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	e, ok := err.(*Error)
	return e, ok
}
