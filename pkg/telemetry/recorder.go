// Package telemetry records form engine events. The default recorder drops
// everything; NewPrometheus exports counters through client_golang.
package telemetry

// Recorder receives engine events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	SubmissionDispatched(formID string)
	SubmissionFailed(formID, reason string)
	ValidationFailed(rule string)
	CapacityRejected(resource string)
	PaymentTransition(from, to string)
	PollAttempt(outcome string)
}

// Nop returns a recorder that ignores every event.
func Nop() Recorder { return nopRecorder{} }

type nopRecorder struct{}

func (nopRecorder) SubmissionDispatched(string) {}

func (nopRecorder) SubmissionFailed(string, string) {}

func (nopRecorder) ValidationFailed(string) {}

func (nopRecorder) CapacityRejected(string) {}

func (nopRecorder) PaymentTransition(string, string) {}

func (nopRecorder) PollAttempt(string) {}

// OrNop returns r, or the no-op recorder when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop()
	}
	return r
}
