package validation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/capacity"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/telemetry"
)

// FailurePolicy decides what a transport failure during a remote check
// means for the field.
type FailurePolicy string

const (
	// FailOpen treats an unreachable backend as "no conflict".
	FailOpen FailurePolicy = "fail-open"
	// FailClosed records a "could not verify" error on the field.
	FailClosed FailurePolicy = "fail-closed"
)

// ParseFailurePolicy accepts "fail-open"/"open" and "fail-closed"/"closed".
func ParseFailurePolicy(raw string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "fail-open", "open":
		return FailOpen, nil
	case "fail-closed", "closed":
		return FailClosed, nil
	default:
		return "", fmt.Errorf("validation: unknown failure policy %q", raw)
	}
}

// UniquenessChecker answers remote uniqueness probes. excludeID names a
// submission, usually the resumed one, that does not count as a conflict.
type UniquenessChecker interface {
	CheckUnique(ctx context.Context, kind backend.UniqueKind, formID, value, excludeID string) (backend.Uniqueness, error)
}

// CapacityChecker re-validates a constrained selection against fresh counts.
type CapacityChecker interface {
	Recheck(ctx context.Context, field schema.Field, value string) error
}

// ErrorMap holds one message per invalid field. A missing key means valid.
type ErrorMap map[string]string

// Valid reports whether no field failed.
func (m ErrorMap) Valid() bool { return len(m) == 0 }

// First returns the first failing field in declaration order. Keys that are
// not declared by form sort after declared ones.
func (m ErrorMap) First(form schema.FormSchema) (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	for _, field := range form.Fields() {
		if _, ok := m[field.Name]; ok {
			return field.Name, true
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], true
}

// Clone returns an independent copy.
func (m ErrorMap) Clone() ErrorMap {
	out := make(ErrorMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Input is the state a validation pass runs against.
type Input struct {
	Form     schema.FormSchema
	Values   map[string]any
	Disabled map[string]bool
	// ResumeID is the submission being updated in place, if any. A
	// uniqueness hit on that same submission is not a conflict.
	ResumeID string
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithUniquenessChecker enables the remote uniqueness rule.
func WithUniquenessChecker(checker UniquenessChecker) Option {
	return func(p *Pipeline) { p.unique = checker }
}

// WithCapacityChecker enables the capacity rule.
func WithCapacityChecker(checker CapacityChecker) Option {
	return func(p *Pipeline) { p.capacity = checker }
}

// WithFailurePolicy sets how remote transport failures are handled.
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(p *Pipeline) {
		if policy != "" {
			p.policy = policy
		}
	}
}

// WithClock injects the time source used by the age rule.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMinimumAge overrides DefaultMinimumAge.
func WithMinimumAge(years int) Option {
	return func(p *Pipeline) {
		if years > 0 {
			p.minAge = years
		}
	}
}

// WithConcurrency bounds the number of in-flight remote checks on submit.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(rec telemetry.Recorder) Option {
	return func(p *Pipeline) { p.recorder = telemetry.OrNop(rec) }
}

// Pipeline composes local, checksum and remote rules into an ErrorMap.
type Pipeline struct {
	unique      UniquenessChecker
	capacity    CapacityChecker
	policy      FailurePolicy
	now         func() time.Time
	minAge      int
	concurrency int
	logger      *zap.Logger
	recorder    telemetry.Recorder
}

// New builds a pipeline. Without checkers only local rules run.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		policy:      FailOpen,
		now:         time.Now,
		minAge:      DefaultMinimumAge,
		concurrency: 8,
		logger:      zap.NewNop(),
		recorder:    telemetry.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Policy returns the configured failure policy.
func (p *Pipeline) Policy() FailurePolicy { return p.policy }

// Local runs the synchronous rules for one field.
func (p *Pipeline) Local(field schema.Field, value any, disabled bool) *FieldError {
	fe := checkLocal(field, value, disabled, p.now(), p.minAge)
	if fe != nil {
		p.recorder.ValidationFailed(string(fe.Rule))
	}
	return fe
}

// Field validates one field the way a blur does: local rules first, then
// remote checks when the value is locally valid. The returned error is only
// set when ctx ends.
func (p *Pipeline) Field(ctx context.Context, in Input, name string) (*FieldError, error) {
	field, ok := in.Form.Field(name)
	if !ok {
		return nil, fmt.Errorf("validation: unknown field %q", name)
	}
	value := in.Values[name]
	if fe := p.Local(field, value, in.Disabled[name]); fe != nil {
		return fe, nil
	}
	if in.Disabled[name] {
		return nil, nil
	}
	return p.remote(ctx, in, field, value)
}

// Validate checks every declared field. Local rules run in order; remote
// checks for locally valid fields run concurrently and are joined before
// the map is returned.
func (p *Pipeline) Validate(ctx context.Context, in Input) (ErrorMap, error) {
	errs := make(ErrorMap)
	var remoteFields []schema.Field

	for _, field := range in.Form.Fields() {
		value := in.Values[field.Name]
		disabled := in.Disabled[field.Name]
		if fe := p.Local(field, value, disabled); fe != nil {
			errs[field.Name] = fe.Message
			continue
		}
		if !disabled && p.needsRemote(field, value) {
			remoteFields = append(remoteFields, field)
		}
	}

	if len(remoteFields) == 0 {
		return errs, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, field := range remoteFields {
		field := field
		g.Go(func() error {
			fe, err := p.remote(gctx, in, field, in.Values[field.Name])
			if err != nil {
				return err
			}
			if fe != nil {
				mu.Lock()
				errs[field.Name] = fe.Message
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errs, err
	}
	return errs, nil
}

func (p *Pipeline) needsRemote(field schema.Field, value any) bool {
	str, ok := value.(string)
	if !ok || strings.TrimSpace(str) == "" {
		return false
	}
	if _, ok := UniqueKindFor(field); ok && p.unique != nil {
		return true
	}
	if _, ok := capacity.Classify(field); ok && p.capacity != nil {
		return true
	}
	return false
}

func (p *Pipeline) remote(ctx context.Context, in Input, field schema.Field, value any) (*FieldError, error) {
	if !p.needsRemote(field, value) {
		return nil, nil
	}
	str := value.(string)

	if kind, ok := UniqueKindFor(field); ok && p.unique != nil {
		res, err := p.unique.CheckUnique(ctx, kind, in.Form.ID, str, in.ResumeID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if fe := p.probeFailed(field, RuleUniqueness, err); fe != nil {
				return fe, nil
			}
		case res.Exists && (in.ResumeID == "" || res.SubmissionID != in.ResumeID):
			return p.record(&FieldError{
				Field:   field.Name,
				Rule:    RuleUniqueness,
				Message: fmt.Sprintf("This %s has already been used in this form.", field.DisplayLabel()),
			}), nil
		}
	}

	if _, ok := capacity.Classify(field); ok && p.capacity != nil {
		err := p.capacity.Recheck(ctx, field, str)
		var reached *capacity.ReachedError
		switch {
		case errors.As(err, &reached):
			return p.record(&FieldError{Field: field.Name, Rule: RuleCapacity, Message: reached.Message()}), nil
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if fe := p.probeFailed(field, RuleCapacity, err); fe != nil {
				return fe, nil
			}
		}
	}
	return nil, nil
}

func (p *Pipeline) probeFailed(field schema.Field, rule Rule, err error) *FieldError {
	p.logger.Warn("remote check failed",
		zap.String("field", field.Name),
		zap.String("rule", string(rule)),
		zap.String("policy", string(p.policy)),
		zap.Error(err),
	)
	if p.policy != FailClosed {
		return nil
	}
	return p.record(&FieldError{
		Field:   field.Name,
		Rule:    rule,
		Message: fmt.Sprintf("Could not verify %s. Please try again.", field.DisplayLabel()),
	})
}

func (p *Pipeline) record(fe *FieldError) *FieldError {
	p.recorder.ValidationFailed(string(fe.Rule))
	return fe
}
