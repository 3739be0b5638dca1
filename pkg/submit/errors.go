package submit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-formengine/pkg/validation"
)

// ErrSubmitInProgress is returned when a submit arrives while another one is
// outstanding. No request is sent.
var ErrSubmitInProgress = errors.New("submit: a submission is already in progress")

// UnreadableFileMessage is the field message for a chosen file that could not be
// read when the payload was built.
const UnreadableFileMessage = "The selected file could not be read. Please choose it again."

// ValidationFailedError aborts a submit before anything is sent.
type ValidationFailedError struct {
	Errors validation.ErrorMap
	// First is the first failing field in declaration order.
	First string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("submit: %d field(s) invalid, first %q", len(e.Errors), e.First)
}

// SubmissionError reports a failed dispatch. Entered values are preserved.
type SubmissionError struct {
	Err error
	// FieldErrors is set when the backend rejected a specific field, such
	// as a slot that filled up after the local recheck.
	FieldErrors validation.ErrorMap
}

func (e *SubmissionError) Error() string {
	if len(e.FieldErrors) > 0 {
		fields := make([]string, 0, len(e.FieldErrors))
		for name := range e.FieldErrors {
			fields = append(fields, name)
		}
		return fmt.Sprintf("submit: rejected fields %s: %v", strings.Join(fields, ","), e.Err)
	}
	return fmt.Sprintf("submit: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
