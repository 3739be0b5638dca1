package submit

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/response"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/telemetry"
	"github.com/goliatone/go-formengine/pkg/validation"
)

// State of the orchestrator.
type State int32

const (
	Idle State = iota
	Submitting
)

func (s State) String() string {
	if s == Submitting {
		return "submitting"
	}
	return "idle"
}

// Dispatcher sends the multipart submission.
type Dispatcher interface {
	Submit(ctx context.Context, req backend.SubmitRequest) (backend.SubmitResponse, error)
}

// Validator runs the full validation pass.
type Validator interface {
	Validate(ctx context.Context, in validation.Input) (validation.ErrorMap, error)
}

// ResumeBinding exposes the submission being updated in place.
type ResumeBinding interface {
	SubmissionID() string
	Clear()
}

// Request describes one submit action.
type Request struct {
	Form     schema.FormSchema
	Store    *response.Store
	Disabled map[string]bool
	Resume   ResumeBinding
}

// Result is returned after a successful dispatch.
type Result struct {
	SubmissionID    string
	PaymentRequired bool
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(rec telemetry.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = telemetry.OrNop(rec) }
}

// WithKeyGenerator overrides the idempotency key source.
func WithKeyGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newKey = fn
		}
	}
}

// WithFileReader overrides how path-only file references are read.
func WithFileReader(fn func(path string) ([]byte, error)) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.readFile = fn
		}
	}
}

// Orchestrator validates, serialises and dispatches a form exactly once per
// user action.
type Orchestrator struct {
	state      atomic.Int32
	dispatcher Dispatcher
	validator  Validator
	logger     *zap.Logger
	recorder   telemetry.Recorder
	newKey     func() string
	readFile   func(string) ([]byte, error)
}

// New wires an orchestrator.
func New(dispatcher Dispatcher, validator Validator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dispatcher: dispatcher,
		validator:  validator,
		logger:     zap.NewNop(),
		recorder:   telemetry.Nop(),
		newKey:     uuid.NewString,
		readFile:   os.ReadFile,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// State reports whether a submit is outstanding.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Submit runs the full flow. A concurrent call returns ErrSubmitInProgress
// immediately. On success the store is reset to defaults and the resume
// binding cleared; on failure the store is untouched.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Result, error) {
	if !o.state.CompareAndSwap(int32(Idle), int32(Submitting)) {
		return Result{}, ErrSubmitInProgress
	}
	defer o.state.Store(int32(Idle))

	if req.Store == nil {
		return Result{}, errors.New("submit: response store is nil")
	}

	values := req.Store.Snapshot()
	resumeID := ""
	if req.Resume != nil {
		resumeID = req.Resume.SubmissionID()
	}

	errs, err := o.validator.Validate(ctx, validation.Input{
		Form:     req.Form,
		Values:   values,
		Disabled: req.Disabled,
		ResumeID: resumeID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("submit: validate: %w", err)
	}
	if !errs.Valid() {
		first, _ := errs.First(req.Form)
		return Result{}, &ValidationFailedError{Errors: errs, First: first}
	}

	payload, fileErrs := o.buildRequest(req.Form, values, resumeID)
	if !fileErrs.Valid() {
		first, _ := fileErrs.First(req.Form)
		o.recorder.ValidationFailed("file")
		return Result{}, &ValidationFailedError{Errors: fileErrs, First: first}
	}

	o.recorder.SubmissionDispatched(req.Form.ID)
	resp, err := o.dispatcher.Submit(ctx, payload)
	if err != nil {
		return Result{}, o.failed(req.Form, err)
	}

	req.Store.Reset()
	if req.Resume != nil {
		req.Resume.Clear()
	}
	o.logger.Info("form submitted",
		zap.String("form", req.Form.ID),
		zap.String("submission", resp.SubmissionID),
		zap.Bool("paymentRequired", resp.PaymentRequired),
	)
	return Result{SubmissionID: resp.SubmissionID, PaymentRequired: resp.PaymentRequired}, nil
}

func (o *Orchestrator) failed(form schema.FormSchema, err error) error {
	subErr := &SubmissionError{Err: err}
	reason := "transport"

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		reason = fmt.Sprintf("status_%d", apiErr.Status)
		if apiErr.Field != "" {
			msg := apiErr.Message
			if msg == "" {
				msg = "This selection is no longer available."
			}
			subErr.FieldErrors = validation.ErrorMap{apiErr.Field: msg}
		}
	}
	o.recorder.SubmissionFailed(form.ID, reason)
	o.logger.Warn("submission failed", zap.String("form", form.ID), zap.String("reason", reason), zap.Error(err))
	return subErr
}

// buildRequest assembles the payload. Files that cannot be read come back as
// field errors so the user can pick them again.
func (o *Orchestrator) buildRequest(form schema.FormSchema, values map[string]any, resumeID string) (backend.SubmitRequest, validation.ErrorMap) {
	req := backend.SubmitRequest{
		FormID:         form.ID,
		Responses:      make(map[string]any, len(values)),
		SubmissionID:   resumeID,
		IdempotencyKey: o.newKey(),
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := make(validation.ErrorMap)
	for _, name := range names {
		value := values[name]
		ref, isFile := value.(response.FileRef)
		if !isFile {
			req.Responses[name] = value
			continue
		}
		if ref.IsZero() {
			continue
		}
		part, err := o.filePart(name, ref)
		if err != nil {
			o.logger.Warn("file unreadable", zap.String("form", form.ID), zap.String("field", name), zap.Error(err))
			errs[name] = UnreadableFileMessage
			continue
		}
		req.Files = append(req.Files, part)
	}
	return req, errs
}

func (o *Orchestrator) filePart(field string, ref response.FileRef) (backend.FilePart, error) {
	data := ref.Data
	if len(data) == 0 && ref.Path != "" {
		read, err := o.readFile(ref.Path)
		if err != nil {
			return backend.FilePart{}, fmt.Errorf("submit: read %s for %s: %w", ref.Path, field, err)
		}
		data = read
	}
	filename := ref.Filename
	if filename == "" {
		filename = filepath.Base(ref.Path)
	}
	contentType := ref.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	return backend.FilePart{Field: field, Filename: filename, ContentType: contentType, Data: data}, nil
}
