// Package resume finds an incomplete submission for the identity typed into
// a form so the respondent can finish it instead of starting over.
package resume

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/validation"
)

// Lookup queries the backend for an incomplete submission.
type Lookup interface {
	Resume(ctx context.Context, formID, aadhaar, phone string) (backend.ResumeResult, error)
}

// Match is a found submission plus the values to pre-fill.
type Match struct {
	SubmissionID string
	// Prefill holds raw values for declared, non-file fields only.
	Prefill map[string]any
}

type identity struct {
	aadhaar string
	phone   string
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Tracker binds a resumed submission id to the exact identity pair that
// produced it. Changing either identity field drops the id; pre-filled
// values stay. A later match replaces it.
type Tracker struct {
	mu           sync.Mutex
	lookup       Lookup
	form         schema.FormSchema
	aadhaarField string
	phoneField   string
	bound        identity
	submissionID string
	lastQueried  identity
	logger       *zap.Logger
}

// New prepares a tracker for form. It is inert when the form lacks either
// identity field or lookup is nil.
func New(form schema.FormSchema, lookup Lookup, opts ...Option) *Tracker {
	t := &Tracker{lookup: lookup, form: form, logger: zap.NewNop()}
	t.aadhaarField, t.phoneField = IdentityFieldsOf(form)
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// IdentityFieldsOf returns the first aadhaar-like and phone-like fields of
// form. Either may be empty.
func IdentityFieldsOf(form schema.FormSchema) (aadhaar, phone string) {
	for _, field := range form.Fields() {
		if aadhaar == "" && validation.IsAadhaarLike(field) {
			aadhaar = field.Name
			continue
		}
		if phone == "" && validation.IsPhoneLike(field) {
			phone = field.Name
		}
	}
	return aadhaar, phone
}

// Enabled reports whether the form carries both identity fields.
func (t *Tracker) Enabled() bool {
	return t != nil && t.lookup != nil && t.aadhaarField != "" && t.phoneField != ""
}

// IdentityFields returns the aadhaar-like and phone-like field names.
func (t *Tracker) IdentityFields() (aadhaar, phone string) {
	return t.aadhaarField, t.phoneField
}

// SubmissionID returns the bound submission id, if any.
func (t *Tracker) SubmissionID() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.submissionID
}

// Clear forgets the bound id and the last queried identity.
func (t *Tracker) Clear() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.submissionID = ""
	t.bound = identity{}
	t.lastQueried = identity{}
}

// Observe is called after an identity field changes. It drops a stale
// binding and, when both identity values are locally valid and not yet
// queried, asks the backend for a match. A nil match means nothing new.
func (t *Tracker) Observe(ctx context.Context, values map[string]any) (*Match, error) {
	if !t.Enabled() {
		return nil, nil
	}
	current := identity{
		aadhaar: strings.TrimSpace(asString(values[t.aadhaarField])),
		phone:   strings.TrimSpace(asString(values[t.phoneField])),
	}

	t.mu.Lock()
	if t.submissionID != "" && current != t.bound {
		t.logger.Debug("identity changed, dropping resumed submission",
			zap.String("form", t.form.ID),
			zap.String("submission", t.submissionID),
		)
		t.submissionID = ""
		t.bound = identity{}
		t.lastQueried = identity{}
	}
	ready := validation.AadhaarMessage(current.aadhaar) == "" && validation.ValidPhone(current.phone)
	if !ready {
		t.lastQueried = identity{}
		t.mu.Unlock()
		return nil, nil
	}
	if current == t.lastQueried {
		t.mu.Unlock()
		return nil, nil
	}
	t.lastQueried = current
	t.mu.Unlock()

	res, err := t.lookup.Resume(ctx, t.form.ID, current.aadhaar, current.phone)
	if err != nil {
		t.mu.Lock()
		if t.lastQueried == current {
			t.lastQueried = identity{}
		}
		t.mu.Unlock()
		return nil, fmt.Errorf("resume: lookup: %w", err)
	}
	if !res.Success || res.SubmissionID == "" {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastQueried != current {
		// identity changed while the lookup was in flight
		return nil, nil
	}
	t.submissionID = res.SubmissionID
	t.bound = current

	match := &Match{SubmissionID: res.SubmissionID, Prefill: make(map[string]any)}
	for _, field := range t.form.Fields() {
		if field.Type == schema.FieldTypeFile {
			continue
		}
		if value, ok := res.Responses[field.Name]; ok {
			match.Prefill[field.Name] = value
		}
	}
	return match, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
