package capacity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/telemetry"
)

// Default ceilings for constrained resources.
const (
	DefaultSlotCeiling     = 25
	DefaultExamDateCeiling = 25
)

// ErrCapacityReached is matched by every ReachedError.
var ErrCapacityReached = errors.New("capacity: resource is full")

// Resource identifies a finite-capacity field family.
type Resource string

const (
	ResourceSlot     Resource = "slot"
	ResourceExamDate Resource = "exam_date"
)

var examDatePattern = regexp.MustCompile(`(?i)exam[_\s-]?date`)

// Classify reports which resource a field draws from, if any.
func Classify(field schema.Field) (Resource, bool) {
	if field.Type == schema.FieldTypeFile {
		return "", false
	}
	if strings.Contains(strings.ToLower(field.Name), "slot") {
		return ResourceSlot, true
	}
	if examDatePattern.MatchString(field.Name) {
		return ResourceExamDate, true
	}
	return "", false
}

// ReachedError carries the user-facing warning for a full resource.
type ReachedError struct {
	Field    string
	Value    string
	Resource Resource
	Count    int
	Ceiling  int
}

func (e *ReachedError) Error() string {
	return fmt.Sprintf("capacity: %s %q is full (%d/%d)", e.Resource, e.Value, e.Count, e.Ceiling)
}

// Is lets errors.Is match ErrCapacityReached.
func (e *ReachedError) Is(target error) bool {
	return target == ErrCapacityReached
}

// Message is the warning shown to the respondent.
func (e *ReachedError) Message() string {
	if e.Resource == ResourceExamDate {
		return "Selected exam date is full. Please choose another date."
	}
	return "Selected slot is full. Please choose another slot."
}

// Source fetches occupancy from the backend.
type Source interface {
	CapacitySnapshot(ctx context.Context, formID string) (map[string]int, error)
	ExamDateCount(ctx context.Context, formID, date string) (int, error)
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithCache replaces the default in-memory cache.
func WithCache(cache Cache) Option {
	return func(c *Coordinator) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// WithCeilings overrides the slot and exam-date ceilings.
func WithCeilings(slot, examDate int) Option {
	return func(c *Coordinator) {
		if slot > 0 {
			c.ceilings[ResourceSlot] = slot
		}
		if examDate > 0 {
			c.ceilings[ResourceExamDate] = examDate
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(rec telemetry.Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = telemetry.OrNop(rec)
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator reconciles cached occupancy with selection attempts for one
// form. Local counts are hints; the backend reserves atomically at submit.
type Coordinator struct {
	formID   string
	source   Source
	cache    Cache
	ceilings map[Resource]int
	logger   *zap.Logger
	recorder telemetry.Recorder
	now      func() time.Time
}

// New returns a coordinator for formID backed by source.
func New(formID string, source Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		formID: formID,
		source: source,
		cache:  NewMemoryCache(0),
		ceilings: map[Resource]int{
			ResourceSlot:     DefaultSlotCeiling,
			ResourceExamDate: DefaultExamDateCeiling,
		},
		logger:   zap.NewNop(),
		recorder: telemetry.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Ceiling returns the configured ceiling for r.
func (c *Coordinator) Ceiling(r Resource) int {
	return c.ceilings[r]
}

// Refresh fetches a fresh snapshot and stores it in the cache.
func (c *Coordinator) Refresh(ctx context.Context) (Snapshot, error) {
	counts, err := c.source.CapacitySnapshot(ctx, c.formID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("capacity: refresh %s: %w", c.formID, err)
	}
	snap := Snapshot{Counts: counts, FetchedAt: c.now()}
	if err := c.cache.Set(ctx, c.formID, snap); err != nil {
		c.logger.Warn("capacity cache write failed", zap.String("form", c.formID), zap.Error(err))
	}
	return snap, nil
}

// Snapshot returns the cached snapshot, fetching one on a miss.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	snap, ok, err := c.cache.Get(ctx, c.formID)
	if err != nil {
		c.logger.Warn("capacity cache read failed", zap.String("form", c.formID), zap.Error(err))
	}
	if ok {
		return snap, nil
	}
	return c.Refresh(ctx)
}

// TrySelect checks value against the cached snapshot before the selection
// is committed. It returns a *ReachedError when the resource is full. When
// no snapshot can be obtained the selection is allowed.
func (c *Coordinator) TrySelect(ctx context.Context, field schema.Field, value string) error {
	resource, ok := Classify(field)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	snap, err := c.Snapshot(ctx)
	if err != nil {
		c.logger.Warn("capacity snapshot unavailable, allowing selection",
			zap.String("form", c.formID),
			zap.String("field", field.Name),
			zap.Error(err),
		)
		return nil
	}
	return c.compare(field, resource, value, snap.Count(value))
}

// Recheck bypasses the cache: slots refetch the snapshot, exam dates query
// the per-date count. Transport failures are returned as-is.
func (c *Coordinator) Recheck(ctx context.Context, field schema.Field, value string) error {
	resource, ok := Classify(field)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}

	var count int
	switch resource {
	case ResourceExamDate:
		n, err := c.source.ExamDateCount(ctx, c.formID, value)
		if err != nil {
			return fmt.Errorf("capacity: exam date count: %w", err)
		}
		count = n
	default:
		snap, err := c.Refresh(ctx)
		if err != nil {
			return err
		}
		count = snap.Count(value)
	}
	return c.compare(field, resource, value, count)
}

func (c *Coordinator) compare(field schema.Field, resource Resource, value string, count int) error {
	ceiling := c.ceilings[resource]
	if count < ceiling {
		return nil
	}
	c.recorder.CapacityRejected(string(resource))
	c.logger.Info("capacity reached",
		zap.String("form", c.formID),
		zap.String("field", field.Name),
		zap.String("value", value),
		zap.Int("count", count),
		zap.Int("ceiling", ceiling),
	)
	return &ReachedError{Field: field.Name, Value: value, Resource: resource, Count: count, Ceiling: ceiling}
}
