package backend

import (
	"fmt"
	"net/http"
	"strings"
)

// UniqueKind selects the uniqueness endpoint.
type UniqueKind string

const (
	UniqueAadhaar UniqueKind = "aadhaar"
	UniquePhone   UniqueKind = "phone"
	UniqueBNRC    UniqueKind = "bnrc"
)

// Uniqueness is the answer of a check-{kind} probe.
type Uniqueness struct {
	Exists       bool   `json:"exists"`
	SubmissionID string `json:"submissionId,omitempty"`
}

// FilePart is one binary attachment of a submission, named after its field.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// SubmitRequest carries everything sent to the submit endpoint.
type SubmitRequest struct {
	FormID         string
	Responses      map[string]any
	SubmissionID   string
	Files          []FilePart
	IdempotencyKey string
}

// SubmitResponse is the backend's answer to a successful submit.
type SubmitResponse struct {
	SubmissionID    string
	PaymentRequired bool
}

// Order is a payment order created for a submission.
type Order struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// PaymentProof is the completion payload returned by a gateway.
type PaymentProof struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Signature string `json:"signature"`
}

// Status is the polled submission status.
type Status struct {
	PaymentRequired bool   `json:"paymentRequired"`
	PaymentStatus   string `json:"paymentStatus"`
	FormName        string `json:"formName"`
}

// ResumeResult describes an incomplete submission matching an identity.
type ResumeResult struct {
	Success      bool           `json:"success"`
	SubmissionID string         `json:"submissionId"`
	Responses    map[string]any `json:"responses"`
}

// APIError is returned for every non-2xx response.
type APIError struct {
	Status  int
	Message string
	// Field names the offending field when the backend reports one, for
	// example on a capacity conflict.
	Field string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Field != "" {
		return fmt.Sprintf("backend: status %d: %s (field %q)", e.Status, msg, e.Field)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, msg)
}

// IsConflict reports a 409 answer, used for capacity reservations.
func (e *APIError) IsConflict() bool {
	return e != nil && e.Status == http.StatusConflict
}

type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Field   string `json:"field"`
}
