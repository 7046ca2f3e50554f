package reqcoord

import (
	"errors"
	"fmt"

	"github.com/mdshimul186/reqcoord/internal/singleflight"
)

// Sentinel errors for coordinator-originated failures. Errors returned by a
// wrapped operation are never replaced by these.
var (
	// ErrEmptyKey is returned when a call is made with an empty key.
	ErrEmptyKey = errors.New("reqcoord: empty key")

	// ErrNilOperation is returned when a call is made without an operation.
	ErrNilOperation = errors.New("reqcoord: nil operation")

	// ErrOperationPanicked is delivered to callers that joined an in-flight
	// call whose operation panicked.
	ErrOperationPanicked = singleflight.ErrPanicked

	// ErrTypeMismatch is returned when a shared result cannot be converted to
	// the type requested by a caller.
	ErrTypeMismatch = errors.New("reqcoord: result type mismatch")

	// ErrLossyValue reports a result that an encoding store cannot keep
	// without changing it.
	ErrLossyValue = errors.New("reqcoord: value does not survive encoding")

	// ErrClosed is returned by operations on a closed coordinator.
	ErrClosed = errors.New("reqcoord: coordinator closed")

	// ErrInvalidConfig is returned when configuration fails validation.
	ErrInvalidConfig = errors.New("reqcoord: invalid configuration")
)

// Operation names used in CoordinatorError.
const (
	OpCached        = "cached"
	OpDeduped       = "deduped"
	OpThrottled     = "throttled"
	OpCachedDeduped = "cached_deduped"
	OpClear         = "clear"
	OpInvalidate    = "invalidate"
	OpConfig        = "config"
)

// CoordinatorError describes a failure raised by the coordinator itself.
type CoordinatorError struct {
	Op    string
	Key   string
	Cause error
}

// Error implements error interface.
func (e *CoordinatorError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Op
	if e.Key != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Key)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CoordinatorError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is a CoordinatorError for the same operation.
func (e *CoordinatorError) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*CoordinatorError); ok {
		return e.Op == t.Op
	}
	return false
}

func newError(op, key string, cause error) error {
	return &CoordinatorError{Op: op, Key: key, Cause: cause}
}

// PanicError carries the recovered value of a panicking operation to the
// callers that were waiting on it. errors.Is(err, ErrOperationPanicked) holds.
type PanicError = singleflight.PanicError
