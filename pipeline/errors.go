package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure by the stage that detected it.
type ErrorKind string

const (
	// InvalidLocation means the destination string is not a usable location.
	InvalidLocation ErrorKind = "INVALID_LOCATION"

	// Cancelled means the cancellation signal was observed mid-transfer.
	Cancelled ErrorKind = "CANCELLED"

	// SourceReadFailed means the byte source reported a non-transient read error.
	SourceReadFailed ErrorKind = "SOURCE_READ_FAILED"

	// CoercionFailed means a value could not be turned into bytes.
	CoercionFailed ErrorKind = "COERCION_FAILED"

	// TransformFailed means a format transformation failed.
	TransformFailed ErrorKind = "TRANSFORM_FAILED"

	// BackendWriteFailed means the storage backend rejected a write or the commit.
	BackendWriteFailed ErrorKind = "BACKEND_WRITE_FAILED"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrInvalidLocation    = &Error{Kind: InvalidLocation}
	ErrCancelled          = &Error{Kind: Cancelled}
	ErrSourceReadFailed   = &Error{Kind: SourceReadFailed}
	ErrCoercionFailed     = &Error{Kind: CoercionFailed}
	ErrTransformFailed    = &Error{Kind: TransformFailed}
	ErrBackendWriteFailed = &Error{Kind: BackendWriteFailed}
)

// Error is the structured failure reported for one invocation.
type Error struct {
	// Kind is the taxonomy entry.
	Kind ErrorKind

	// Op is the operation that failed (e.g. "parse", "copy", "finalize").
	Op string

	// Msg is a human readable description; may be empty when Err says it all.
	Msg string

	// Span attributes the failure to the caller's source text.
	Span Span

	// Err is the underlying cause, if any.
	Err error
}

// NewError creates an Error of the given kind for op wrapping err.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithSpan attaches provenance to the error.
func (e *Error) WithSpan(span Span) *Error {
	e.Span = span
	return e
}

// WithMessage sets the human readable message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	e.Msg = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return prefix
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
