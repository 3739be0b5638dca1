package payment

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the payment lifecycle state of a submission.
type Status string

const (
	StatusNotRequired Status = "NotRequired"
	StatusCreated     Status = "Created"
	StatusPending     Status = "Pending"
	StatusCompleted   Status = "Completed"
	StatusFailed      Status = "Failed"
)

// Terminal reports whether polling can stop.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusNotRequired
}

// ParseStatus maps a backend status string onto Status. Unknown values are
// treated as still pending.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "complete", "paid", "success":
		return StatusCompleted
	case "failed", "failure":
		return StatusFailed
	case "created":
		return StatusCreated
	case "notrequired", "not_required", "not required":
		return StatusNotRequired
	default:
		return StatusPending
	}
}

var (
	// ErrPollTimeout is returned when Await exceeds its bound without a
	// terminal status. CheckAgain can still be used afterwards.
	ErrPollTimeout = errors.New("payment: status polling timed out")
	// ErrNoSubmission is returned when no submission id is attached.
	ErrNoSubmission = errors.New("payment: no submission attached")
)

// Error wraps order and gateway failures. A terminal Failed status is an
// outcome, not an Error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("payment: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
