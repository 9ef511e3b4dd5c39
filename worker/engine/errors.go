package engine

import (
	"errors"
	"fmt"
)

// Reason classifies why a task stopped short of Completed.
type Reason string

const (
	ReasonRejected    Reason = "rejected"
	ReasonAcquisition Reason = "acquisition_failed"
	ReasonTimeout     Reason = "timeout"
	ReasonTranscode   Reason = "transcode_failed"
	ReasonDelivery    Reason = "delivery_failed"
	ReasonCancelled   Reason = "cancelled"
	ReasonInternal    Reason = "internal"
)

// TaskError is the terminal error attached to a failed or cancelled
// task.
type TaskError struct {
	Reason Reason
	Detail string
	Err    error
}

func (e *TaskError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
	}
	return string(e.Reason)
}

func (e *TaskError) Unwrap() error { return e.Err }

func newTaskError(reason Reason, err error) *TaskError {
	te := &TaskError{Reason: reason, Err: err}
	if err != nil {
		te.Detail = err.Error()
	}
	return te
}

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrShuttingDown = errors.New("engine is shutting down")
	ErrBotHeld      = errors.New("requests are currently held")
)
