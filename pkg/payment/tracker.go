// Package payment drives the post-submission payment lifecycle: order
// creation, the gateway hand-off, proof verification and status polling.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/telemetry"
)

// Polling bounds used when no option overrides them.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxWait      = 10 * time.Minute
)

// Backend is the subset of the backend client used for payments.
type Backend interface {
	CreateOrder(ctx context.Context, submissionID string) (backend.Order, error)
	VerifyPayment(ctx context.Context, submissionID string, proof backend.PaymentProof) error
	Status(ctx context.Context, submissionID string) (backend.Status, error)
}

// TransitionFunc observes status changes.
type TransitionFunc func(from, to Status)

// Option customises a Tracker.
type Option func(*Tracker)

// WithPollInterval sets the delay between status queries.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithMaxWait bounds Await.
func WithMaxWait(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.maxWait = d
		}
	}
}

// WithGateway replaces the manual gateway.
func WithGateway(g Gateway) Option {
	return func(t *Tracker) {
		if g != nil {
			t.gateway = g
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithRecorder(rec telemetry.Recorder) Option {
	return func(t *Tracker) {
		t.recorder = telemetry.OrNop(rec)
	}
}

// OnTransition registers fn for every status change.
func OnTransition(fn TransitionFunc) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.listeners = append(t.listeners, fn)
		}
	}
}

// Tracker follows the payment of one submission at a time.
type Tracker struct {
	backend   Backend
	gateway   Gateway
	interval  time.Duration
	maxWait   time.Duration
	logger    *zap.Logger
	recorder  telemetry.Recorder
	listeners []TransitionFunc

	mu           sync.Mutex
	submissionID string
	status       Status
	order        *backend.Order
	formName     string
}

// New builds a tracker around b.
func New(b Backend, opts ...Option) *Tracker {
	t := &Tracker{
		backend:  b,
		gateway:  ManualGateway{},
		interval: DefaultPollInterval,
		maxWait:  DefaultMaxWait,
		logger:   zap.NewNop(),
		recorder: telemetry.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Status returns the current status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SubmissionID returns the attached submission.
func (t *Tracker) SubmissionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.submissionID
}

// FormName returns the form name reported by the last status query.
func (t *Tracker) FormName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.formName
}

// Order returns the order created by Begin, if any.
func (t *Tracker) Order() (backend.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.order == nil {
		return backend.Order{}, false
	}
	return *t.order, true
}

// Attach points the tracker at an existing submission, for a confirmation
// view that only knows the id. The status is unknown until queried.
func (t *Tracker) Attach(submissionID string) {
	t.mu.Lock()
	t.submissionID = submissionID
	t.status = ""
	t.order = nil
	t.formName = ""
	t.mu.Unlock()
}

// Begin starts payment for a freshly accepted submission. When payment is
// not required the tracker settles on NotRequired and returns an empty
// checkout. Order or gateway failures leave the submission intact and are
// returned as *Error.
func (t *Tracker) Begin(ctx context.Context, submissionID string, required bool) (Checkout, error) {
	t.Attach(submissionID)
	if !required {
		t.transition(StatusNotRequired)
		return Checkout{}, nil
	}

	order, err := t.backend.CreateOrder(ctx, submissionID)
	if err != nil {
		return Checkout{}, &Error{Op: "create order", Err: err}
	}
	t.mu.Lock()
	t.order = &order
	t.mu.Unlock()
	t.transition(StatusCreated)

	checkout, err := t.gateway.Start(ctx, submissionID, order)
	if err != nil {
		return Checkout{}, &Error{Op: "start " + t.gateway.Name(), Err: err}
	}
	t.transition(StatusPending)
	t.logger.Info("payment started",
		zap.String("submission_id", submissionID),
		zap.String("order_id", order.ID),
		zap.String("gateway", t.gateway.Name()),
	)
	return checkout, nil
}

// Verify forwards the gateway completion payload to the backend and then
// refreshes the status once.
func (t *Tracker) Verify(ctx context.Context, proof backend.PaymentProof) (Status, error) {
	id := t.SubmissionID()
	if id == "" {
		return t.Status(), ErrNoSubmission
	}
	if err := t.backend.VerifyPayment(ctx, id, proof); err != nil {
		return t.Status(), &Error{Op: "verify", Err: err}
	}
	return t.CheckAgain(ctx)
}

// CheckAgain queries the status once.
func (t *Tracker) CheckAgain(ctx context.Context) (Status, error) {
	id := t.SubmissionID()
	if id == "" {
		return t.Status(), ErrNoSubmission
	}
	remote, err := t.backend.Status(ctx, id)
	if err != nil {
		t.recorder.PollAttempt("error")
		return t.Status(), fmt.Errorf("payment: status: %w", err)
	}

	next := StatusNotRequired
	if remote.PaymentRequired {
		next = ParseStatus(remote.PaymentStatus)
	}
	t.mu.Lock()
	t.formName = remote.FormName
	t.mu.Unlock()
	t.recorder.PollAttempt(string(next))
	t.transition(next)
	return next, nil
}

// Await polls until the status is terminal, ctx ends or the max wait
// elapses. Transient query errors are logged and polling continues.
func (t *Tracker) Await(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, t.maxWait)
	defer cancel()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		status, err := t.CheckAgain(ctx)
		switch {
		case errors.Is(err, ErrNoSubmission):
			return status, err
		case err != nil:
			t.logger.Warn("payment status query failed", zap.Error(err))
		case status.Terminal():
			return status, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return t.Status(), ErrPollTimeout
			}
			return t.Status(), ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Tracker) transition(to Status) {
	t.mu.Lock()
	from := t.status
	if from == to {
		t.mu.Unlock()
		return
	}
	t.status = to
	listeners := append([]TransitionFunc(nil), t.listeners...)
	t.mu.Unlock()

	t.recorder.PaymentTransition(string(from), string(to))
	for _, fn := range listeners {
		fn(from, to)
	}
}
