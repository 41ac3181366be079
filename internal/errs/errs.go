// Package errs classifies failures of the sync pipeline so callers can decide
// whether to retry, fix configuration or investigate remote data.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a failure category.
type Kind string

const (
	// KindUnknown captures uncategorized failures.
	KindUnknown Kind = "unknown"
	// KindConfiguration indicates a missing or empty required setting.
	KindConfiguration Kind = "configuration"
	// KindAuthentication indicates the remote rejected the credentials or the request.
	KindAuthentication Kind = "authentication"
	// KindTransient indicates a server-side failure, timeout or broken connection.
	KindTransient Kind = "transient"
	// KindDataIntegrity indicates an unparsable value or an unexpected response shape.
	KindDataIntegrity Kind = "data_integrity"
	// KindReconciliation indicates a lookup or write failure while syncing records.
	KindReconciliation Kind = "reconciliation"
	// KindInvalidArgument indicates malformed caller input.
	KindInvalidArgument Kind = "invalid_argument"
)

// Error is the structured error produced across coinbook.
type Error struct {
	Kind       Kind
	Op         string
	HTTPStatus int
	Message    string

	cause error
}

// Option configures an Error.
type Option func(*Error)

// WithHTTP records the HTTP status returned by the remote.
func WithHTTP(status int) Option {
	return func(e *Error) {
		e.HTTPStatus = status
	}
}

// WithCause sets the underlying error.
func WithCause(err error) Option {
	return func(e *Error) {
		e.cause = err
	}
}

// WithMessage attaches a human-readable message.
func WithMessage(format string, args ...any) Option {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	return func(e *Error) {
		e.Message = msg
	}
}

// New constructs an Error of the given kind for operation op.
func New(kind Kind, op string, opts ...Option) *Error {
	e := &Error{Kind: kind, Op: strings.TrimSpace(op)}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Configuration returns a configuration error.
func Configuration(op string, opts ...Option) *Error {
	return New(KindConfiguration, op, opts...)
}

// Authentication returns an authentication error.
func Authentication(op string, opts ...Option) *Error {
	return New(KindAuthentication, op, opts...)
}

// Transient returns a transient service error.
func Transient(op string, opts ...Option) *Error {
	return New(KindTransient, op, opts...)
}

// DataIntegrity returns a data integrity error.
func DataIntegrity(op string, opts ...Option) *Error {
	return New(KindDataIntegrity, op, opts...)
}

// Reconciliation returns a reconciliation error.
func Reconciliation(op string, opts ...Option) *Error {
	return New(KindReconciliation, op, opts...)
}

// InvalidArgument returns an invalid argument error.
func InvalidArgument(op string, opts ...Option) *Error {
	return New(KindInvalidArgument, op, opts...)
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (http %d)", e.HTTPStatus)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether a caller may retry err. A reconciliation error is
// transient when the write that aborted the batch was; rerunning an idempotent batch
// is safe.
func IsTransient(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		switch e.Kind {
		case KindTransient:
			return true
		case KindReconciliation:
			err = e.cause
		default:
			return false
		}
	}
	return false
}

// BatchError reports how far a batch got before it failed.
type BatchError struct {
	Processed int
	Key       string

	cause error
}

// NewBatchError wraps cause with the batch progress.
func NewBatchError(processed int, key string, cause error) *BatchError {
	return &BatchError{Processed: processed, Key: key, cause: cause}
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch aborted at %s after %d processed: %v", e.Key, e.Processed, e.cause)
}

// Unwrap exposes the underlying cause.
func (e *BatchError) Unwrap() error {
	return e.cause
}

// Processed returns the progress recorded in err's chain and whether a batch error was found.
func Processed(err error) (int, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Processed, true
	}
	return 0, false
}
