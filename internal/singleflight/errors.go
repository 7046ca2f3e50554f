package singleflight

import (
	"errors"
	"fmt"
)

// ErrPanicked is the cause seen by callers that joined a call whose function
// panicked.
var ErrPanicked = errors.New("reqcoord: operation panicked")

// errGoexit is delivered to waiters when the owning goroutine called
// runtime.Goexit before the function returned.
var errGoexit = errors.New("singleflight: runtime.Goexit was called")

// PanicError wraps the value recovered from a panicking function.
type PanicError struct {
	Key   string
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: key %q: %v", ErrPanicked, e.Key, e.Value)
}

// Unwrap returns ErrPanicked.
func (e *PanicError) Unwrap() error {
	return ErrPanicked
}
