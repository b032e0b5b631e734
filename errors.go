package respool

import (
	"errors"
	"fmt"
	"time"
)

// ErrPoolClosed is returned by Acquire once Close has been called.
var ErrPoolClosed = errors.New("respool: pool is closed")

// ErrBadReturn is logged (not returned) when Release is given an object the
// pool does not recognize as currently in use. It is exported so tests and
// callers that inspect log output can match against it.
var ErrBadReturn = errors.New("respool: release of unknown object")

// PoolError wraps a failure originating in the user-supplied factory or a
// hook that the spec requires to propagate to the caller. Use errors.Unwrap
// or errors.Is/As to inspect the underlying cause.
type PoolError struct {
	Op  string
	Err error
}

func NewPoolError(op string, err error) *PoolError {
	return &PoolError{Op: op, Err: err}
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("respool: %s: %v", e.Op, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned by Acquire when Timeout elapses before a
// capacity permit becomes available. It carries the timeout that elapsed
// so callers can log or back off proportionally.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("respool: timed out after %s waiting for a resource", e.Timeout)
}

// ErrTimeout is a sentinel matched by errors.Is against any *TimeoutError.
var ErrTimeout = &TimeoutError{}

func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// panicError wraps a recovered panic value so a hook that panics looks,
// from the housekeeper's and acquirer's point of view, like one that
// merely returned an error.
type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprint(e.value)
}
