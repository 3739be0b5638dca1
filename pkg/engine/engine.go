// Package engine ties the form engine components into one session per open
// form. A Form owns its response store, overlay, dependency state and
// errors; renderers drive it through Input, Select, Blur and Submit and read
// it back through View.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/capacity"
	"github.com/goliatone/go-formengine/pkg/payment"
	"github.com/goliatone/go-formengine/pkg/resume"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/telemetry"
	"github.com/goliatone/go-formengine/pkg/validation"
	"github.com/goliatone/go-formengine/pkg/widgets"
)

// Backend is everything a form session needs from the server.
// *backend.Client satisfies it.
type Backend interface {
	FetchForm(ctx context.Context, formID string) (schema.FormSchema, error)
	CheckUnique(ctx context.Context, kind backend.UniqueKind, formID, value, excludeID string) (backend.Uniqueness, error)
	ExamDates(ctx context.Context, formID string) ([]string, error)
	capacity.Source
	Submit(ctx context.Context, req backend.SubmitRequest) (backend.SubmitResponse, error)
	payment.Backend
	resume.Lookup
}

var _ Backend = (*backend.Client)(nil)

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder sets the telemetry recorder handed to every component.
func WithRecorder(rec telemetry.Recorder) Option {
	return func(e *Engine) {
		e.recorder = telemetry.OrNop(rec)
	}
}

// WithRegistry replaces the builtin widget registry.
func WithRegistry(reg *widgets.Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.registry = reg
		}
	}
}

// WithCapacityCache shares a snapshot cache between sessions.
func WithCapacityCache(cache capacity.Cache) Option {
	return func(e *Engine) {
		if cache != nil {
			e.cache = cache
		}
	}
}

// WithCeilings overrides the slot and exam-date ceilings.
func WithCeilings(slot, examDate int) Option {
	return func(e *Engine) {
		e.slotCeiling = slot
		e.examDateCeiling = examDate
	}
}

// WithFailurePolicy sets how advisory probe failures are treated.
func WithFailurePolicy(policy validation.FailurePolicy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithClock injects the time source used by the age rule.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMinimumAge overrides the date-of-birth age floor.
func WithMinimumAge(years int) Option {
	return func(e *Engine) {
		e.minAge = years
	}
}

// WithGateway selects the payment gateway.
func WithGateway(gateway payment.Gateway) Option {
	return func(e *Engine) {
		if gateway != nil {
			e.gateway = gateway
		}
	}
}

// WithPolling sets the payment poll interval and bound.
func WithPolling(interval, maxWait time.Duration) Option {
	return func(e *Engine) {
		e.pollInterval = interval
		e.maxWait = maxWait
	}
}

// Engine opens form sessions against one backend.
type Engine struct {
	backend         Backend
	registry        *widgets.Registry
	cache           capacity.Cache
	slotCeiling     int
	examDateCeiling int
	policy          validation.FailurePolicy
	now             func() time.Time
	minAge          int
	gateway         payment.Gateway
	pollInterval    time.Duration
	maxWait         time.Duration
	logger          *zap.Logger
	recorder        telemetry.Recorder
}

// New returns an engine for b.
func New(b Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:  b,
		registry: widgets.NewRegistry(),
		cache:    capacity.NewMemoryCache(30 * time.Second),
		policy:   validation.FailOpen,
		now:      time.Now,
		gateway:  payment.ManualGateway{},
		logger:   zap.NewNop(),
		recorder: telemetry.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Registry returns the widget registry forms resolve field types against.
func (e *Engine) Registry() *widgets.Registry {
	return e.registry
}

// Open fetches the schema of formID and starts a session for it.
func (e *Engine) Open(ctx context.Context, formID string) (*Form, error) {
	form, err := e.backend.FetchForm(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", formID, err)
	}
	e.fillExamDates(ctx, &form)
	return e.OpenSchema(form)
}

// fillExamDates offers the backend's exam dates on exam-date fields that
// the schema left without options. A failed lookup leaves them empty.
func (e *Engine) fillExamDates(ctx context.Context, form *schema.FormSchema) {
	var dates []string
	fetched := false
	for si := range form.Sections {
		fields := append([]schema.Field(nil), form.Sections[si].Fields...)
		for fi, field := range fields {
			if resource, ok := capacity.Classify(field); !ok || resource != capacity.ResourceExamDate || len(field.Options) > 0 {
				continue
			}
			if !fetched {
				fetched = true
				var err error
				if dates, err = e.backend.ExamDates(ctx, form.ID); err != nil {
					e.logger.Warn("exam dates unavailable", zap.String("form", form.ID), zap.Error(err))
				}
			}
			for _, date := range dates {
				fields[fi].Options = append(fields[fi].Options, schema.Option{Label: date, Value: date})
			}
		}
		form.Sections[si].Fields = fields
	}
}

// OpenSchema starts a session for an already loaded schema.
func (e *Engine) OpenSchema(form schema.FormSchema) (*Form, error) {
	if err := form.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return newForm(e, form)
}

// Confirmation returns a payment tracker attached to submissionID, for a
// view that only knows the submission.
func (e *Engine) Confirmation(submissionID string) *payment.Tracker {
	tracker := e.paymentTracker()
	tracker.Attach(submissionID)
	return tracker
}

func (e *Engine) paymentTracker() *payment.Tracker {
	return payment.New(e.backend,
		payment.WithGateway(e.gateway),
		payment.WithPollInterval(e.pollInterval),
		payment.WithMaxWait(e.maxWait),
		payment.WithLogger(e.logger.Named("payment")),
		payment.WithRecorder(e.recorder),
	)
}

func (e *Engine) coordinator(formID string) *capacity.Coordinator {
	return capacity.New(formID, e.backend,
		capacity.WithCache(e.cache),
		capacity.WithCeilings(e.slotCeiling, e.examDateCeiling),
		capacity.WithLogger(e.logger.Named("capacity")),
		capacity.WithRecorder(e.recorder),
		capacity.WithClock(e.now),
	)
}

func (e *Engine) pipeline(coord *capacity.Coordinator) *validation.Pipeline {
	return validation.New(
		validation.WithUniquenessChecker(e.backend),
		validation.WithCapacityChecker(coord),
		validation.WithFailurePolicy(e.policy),
		validation.WithClock(e.now),
		validation.WithMinimumAge(e.minAge),
		validation.WithLogger(e.logger.Named("validation")),
		validation.WithRecorder(e.recorder),
	)
}
