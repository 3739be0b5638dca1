package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/capacity"
	"github.com/goliatone/go-formengine/pkg/dependency"
	"github.com/goliatone/go-formengine/pkg/payment"
	"github.com/goliatone/go-formengine/pkg/response"
	"github.com/goliatone/go-formengine/pkg/resume"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/submit"
	"github.com/goliatone/go-formengine/pkg/validation"
	"github.com/goliatone/go-formengine/pkg/widgets"
)

// Form is one respondent session over a schema. Methods are safe for
// concurrent use; network calls run outside the state lock.
type Form struct {
	base      schema.FormSchema
	registry  *widgets.Registry
	store     *response.Store
	deps      *dependency.Engine
	others    *dependency.OtherInjector
	capacity  *capacity.Coordinator
	pipeline  *validation.Pipeline
	resume    *resume.Tracker
	submitter *submit.Orchestrator
	payments  *payment.Tracker
	logger    *zap.Logger

	mu          sync.Mutex
	state       dependency.State
	errors      validation.ErrorMap
	warnings    map[string]string
	generations map[string]uint64
	result      *submit.Result
	notice      string
}

func newForm(e *Engine, form schema.FormSchema) (*Form, error) {
	defaults, err := e.registry.Defaults(form)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	deps := dependency.New(form)
	coord := e.coordinator(form.ID)
	pipeline := e.pipeline(coord)
	logger := e.logger.With(zap.String("form", form.ID))

	f := &Form{
		base:     form,
		registry: e.registry,
		store:    response.New(deps.Defaults(defaults)),
		deps:     deps,
		others:   dependency.NewOtherInjector(schema.NewOverlay()),
		capacity: coord,
		pipeline: pipeline,
		resume:   resume.New(form, e.backend, resume.WithLogger(logger.Named("resume"))),
		submitter: submit.New(e.backend, pipeline,
			submit.WithLogger(logger.Named("submit")),
			submit.WithRecorder(e.recorder),
		),
		payments:    e.paymentTracker(),
		logger:      logger,
		errors:      make(validation.ErrorMap),
		warnings:    make(map[string]string),
		generations: make(map[string]uint64),
	}
	if err := f.applyRules(""); err != nil {
		return nil, err
	}
	return f, nil
}

// Schema returns the base schema merged with options added this session.
func (f *Form) Schema() schema.FormSchema {
	return f.others.Overlay().Apply(f.base)
}

// Values returns a copy of the current responses.
func (f *Form) Values() map[string]any {
	return f.store.Snapshot()
}

// Errors returns a copy of the current error map.
func (f *Form) Errors() validation.ErrorMap {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors.Clone()
}

// Payment returns the tracker for the last accepted submission.
func (f *Form) Payment() *payment.Tracker {
	return f.payments
}

// ResumedSubmission returns the submission being updated, if any.
func (f *Form) ResumedSubmission() string {
	return f.resume.SubmissionID()
}

// Set coerces raw for name, stores it and re-runs the dependency rules. It
// applies no selection checks; use Input for user edits.
func (f *Form) Set(name string, raw any) error {
	behavior, err := f.behavior(name)
	if err != nil {
		return err
	}
	value, err := behavior.Coerce(raw)
	if err != nil {
		return fmt.Errorf("engine: field %q: %w", name, err)
	}
	if err := f.store.Set(name, value); err != nil {
		return fmt.Errorf("engine: field %q: %w", name, err)
	}

	f.mu.Lock()
	f.generations[name]++
	f.mu.Unlock()

	return f.applyRules(name)
}

// Input handles a user edit. Choice fields go through Select; edits of an
// identity field may pull in a resumable submission.
func (f *Form) Input(ctx context.Context, name string, raw any) error {
	if field, ok := f.base.Field(name); ok {
		behavior, err := f.registry.Resolve(field.Type)
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		_, constrained := capacity.Classify(field)
		if str, ok := raw.(string); ok && (behavior.OtherSentinel || constrained) {
			return f.Select(ctx, name, str)
		}
	}
	if err := f.Set(name, raw); err != nil {
		return err
	}
	return f.observeIdentity(ctx, name)
}

// Select records a choice. The "Other" sentinel opens the free-text
// sub-field without storing anything. A full slot or exam date leaves the
// previous value in place and returns a *capacity.ReachedError whose
// message is also kept as the field warning.
func (f *Form) Select(ctx context.Context, name, value string) error {
	field, ok := f.base.Field(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	behavior, err := f.registry.Resolve(field.Type)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if behavior.OtherSentinel && !f.others.Select(field, value, widgets.OtherOption) {
		return nil
	}

	if err := f.capacity.TrySelect(ctx, field, value); err != nil {
		var reached *capacity.ReachedError
		if errors.As(err, &reached) {
			f.mu.Lock()
			f.warnings[name] = reached.Message()
			f.mu.Unlock()
		}
		return err
	}

	f.mu.Lock()
	delete(f.warnings, name)
	f.mu.Unlock()
	return f.Set(name, value)
}

// CommitOther stores the free-text value of an open "Other" sub-field and
// adds it to the session's options. A blank text keeps the sub-field open.
func (f *Form) CommitOther(name, text string) (string, error) {
	field, ok := f.base.Field(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	value, err := f.others.Commit(field, text)
	if err != nil {
		return "", err
	}
	if err := f.Set(name, value); err != nil {
		return "", err
	}
	return value, nil
}

// OtherOpen reports whether the "Other" sub-field of name is showing.
func (f *Form) OtherOpen(name string) bool {
	return f.others.IsOpen(name)
}

// Blur validates one field. When a newer edit or blur of the same field
// happened while remote checks ran, the result is dropped and
// ErrStaleResult returned.
func (f *Form) Blur(ctx context.Context, name string) (*validation.FieldError, error) {
	if _, ok := f.base.Field(name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}

	f.mu.Lock()
	f.generations[name]++
	gen := f.generations[name]
	in := f.inputLocked()
	f.mu.Unlock()

	fe, err := f.pipeline.Field(ctx, in, name)
	if err != nil {
		return nil, fmt.Errorf("engine: blur %q: %w", name, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generations[name] != gen {
		f.logger.Debug("discarding stale blur result", zap.String("field", name))
		return nil, ErrStaleResult
	}
	if fe != nil {
		f.errors[name] = fe.Message
	} else {
		delete(f.errors, name)
	}
	return fe, nil
}

// Validate runs the full pass and replaces the error map.
func (f *Form) Validate(ctx context.Context) (validation.ErrorMap, error) {
	f.mu.Lock()
	in := f.inputLocked()
	f.mu.Unlock()

	errs, err := f.pipeline.Validate(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("engine: validate: %w", err)
	}
	f.mu.Lock()
	f.errors = errs.Clone()
	f.mu.Unlock()
	return errs, nil
}

// Submit validates and dispatches the form. Validation failures replace
// the error map; a backend field rejection is merged into it. On success
// the store is back at defaults and Pay may be called.
func (f *Form) Submit(ctx context.Context) (submit.Result, error) {
	f.mu.Lock()
	disabled := copyFlags(f.state.Disabled)
	f.mu.Unlock()

	res, err := f.submitter.Submit(ctx, submit.Request{
		Form:     f.Schema(),
		Store:    f.store,
		Disabled: disabled,
		Resume:   f.resume,
	})

	var failed *submit.ValidationFailedError
	var subErr *submit.SubmissionError
	switch {
	case errors.As(err, &failed):
		f.mu.Lock()
		f.errors = failed.Errors.Clone()
		f.mu.Unlock()
		return res, err
	case errors.As(err, &subErr):
		f.mu.Lock()
		for name, msg := range subErr.FieldErrors {
			f.errors[name] = msg
		}
		f.mu.Unlock()
		return res, err
	case err != nil:
		return res, err
	}

	f.others.Reset()
	f.mu.Lock()
	f.errors = make(validation.ErrorMap)
	f.warnings = make(map[string]string)
	f.result = &res
	f.notice = ""
	f.mu.Unlock()
	if err := f.applyRules(""); err != nil {
		return res, err
	}
	return res, nil
}

// Pay starts payment for the last accepted submission. When payment is not
// required it settles on NotRequired and returns an empty checkout.
func (f *Form) Pay(ctx context.Context) (payment.Checkout, error) {
	f.mu.Lock()
	res := f.result
	f.mu.Unlock()
	if res == nil {
		return payment.Checkout{}, ErrNotSubmitted
	}
	return f.payments.Begin(ctx, res.SubmissionID, res.PaymentRequired)
}

func (f *Form) behavior(name string) (widgets.Behavior, error) {
	if name == dependency.SameAsPermanentKey && f.deps.MirrorAvailable() {
		return f.registry.Resolve(schema.FieldTypeCheckbox)
	}
	field, ok := f.base.Field(name)
	if !ok {
		return widgets.Behavior{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	behavior, err := f.registry.Resolve(field.Type)
	if err != nil {
		return widgets.Behavior{}, fmt.Errorf("engine: %w", err)
	}
	return behavior, nil
}

func (f *Form) applyRules(changed string) error {
	state, err := f.deps.Apply(f.store, changed)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
	return nil
}

func (f *Form) observeIdentity(ctx context.Context, name string) error {
	if !f.resume.Enabled() {
		return nil
	}
	aadhaar, phone := f.resume.IdentityFields()
	if name != aadhaar && name != phone {
		return nil
	}
	match, err := f.resume.Observe(ctx, f.store.Snapshot())
	if err != nil {
		f.logger.Warn("resume lookup failed", zap.Error(err))
		return nil
	}
	if match == nil {
		return nil
	}

	for field, raw := range match.Prefill {
		behavior, err := f.behavior(field)
		if err != nil {
			continue
		}
		value, err := behavior.Coerce(raw)
		if err != nil {
			f.logger.Debug("skipping resumed value", zap.String("field", field), zap.Error(err))
			continue
		}
		_ = f.store.Set(field, value)
	}
	f.mu.Lock()
	f.notice = "We found your previous incomplete submission. Your details have been filled in."
	f.mu.Unlock()
	f.logger.Info("resumed submission", zap.String("submission", match.SubmissionID))
	return f.applyRules("")
}

func (f *Form) inputLocked() validation.Input {
	return validation.Input{
		Form:     f.Schema(),
		Values:   f.store.Snapshot(),
		Disabled: copyFlags(f.state.Disabled),
		ResumeID: f.resume.SubmissionID(),
	}
}

func copyFlags(src map[string]bool) map[string]bool {
	out := make(map[string]bool, len(src))
	for k, v := range src {
		if v {
			out[k] = true
		}
	}
	return out
}
