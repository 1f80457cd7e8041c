package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTransport       = errors.New("transport error")
	ErrExecutionFailed = errors.New("query execution failed")
	ErrTimeout         = errors.New("query timed out")
)

// TransportError covers HTTP/network failures, non-2xx statuses and payloads
// that could not be decoded. StatusCode is 0 when no response was received.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("transport error: status %d: %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport error: status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("transport error: %v", e.Err)
	default:
		return "transport error"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ExecutionFailedError is returned when the coordinator reports FAILED or CANCELED.
type ExecutionFailedError struct {
	QueryID     string
	State       QueryState
	Diagnostics string
}

func (e *ExecutionFailedError) Error() string {
	msg := fmt.Sprintf("query %s", e.State)
	if e.QueryID != "" {
		msg = fmt.Sprintf("query %s %s", e.QueryID, e.State)
	}
	if e.Diagnostics != "" {
		msg += ": " + e.Diagnostics
	}
	return msg
}

func (e *ExecutionFailedError) Is(target error) bool { return target == ErrExecutionFailed }

// TimeoutError is returned when the poll budget runs out before a terminal
// state. The query is not cancelled on the coordinator.
type TimeoutError struct {
	QueryID string
	Polls   int
}

func (e *TimeoutError) Error() string {
	if e.QueryID != "" {
		return fmt.Sprintf("query %s timed out after %d polls", e.QueryID, e.Polls)
	}
	return fmt.Sprintf("query timed out after %d polls", e.Polls)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ErrorType returns a short label for logs and metrics.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrExecutionFailed):
		return "execution_failed"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrNotAllowed), errors.Is(err, ErrParseFailed),
		errors.Is(err, ErrEmptyQuery), errors.Is(err, ErrMultiStatement),
		errors.Is(err, ErrSideEffect):
		return "validation_error"
	default:
		return "error"
	}
}
