package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// Executors translate collaborator failures into exactly one of these
// classes. Retryable failures are absorbed and retried by the engine;
// terminal failures move the record to the failure dead end.
type FailureClass string

const (
	ClassRetryable FailureClass = "retryable"
	ClassTerminal  FailureClass = "terminal"
)

type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

type terminalError struct {
	err error
}

func (e terminalError) Error() string { return e.err.Error() }
func (e terminalError) Unwrap() error { return e.err }

// Retryable marks err as transient: the step may be re-run safely and
// is expected to eventually succeed.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// Terminal marks err as unrecoverable for this retirement: no number of
// re-runs will make the step succeed without operator intervention.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return terminalError{err: err}
}

// Classify decides the failure class of an executor error. Explicit
// wrappers win; otherwise network-shaped transients are retryable and
// everything else is terminal, so an unknown collaborator error stops
// the pipeline rather than hammering a subsystem that rejects the call.
func Classify(err error) FailureClass {
	if err == nil {
		return ClassTerminal
	}

	var explicitRetry retryableError
	if errors.As(err, &explicitRetry) {
		return ClassRetryable
	}
	var explicitTerminal terminalError
	if errors.As(err, &explicitTerminal) {
		return ClassTerminal
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	if errors.Is(err, net.ErrClosed) {
		return ClassRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return ClassRetryable
	}

	return ClassTerminal
}
