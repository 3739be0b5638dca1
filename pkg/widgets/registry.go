package widgets

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-formengine/pkg/schema"
)

var (
	// ErrUnknownFieldType is returned when no behavior is registered for a type.
	ErrUnknownFieldType = errors.New("widgets: unknown field type")
	// ErrDuplicateType is returned when a type is registered twice.
	ErrDuplicateType = errors.New("widgets: field type already registered")
)

// Control identifies the interaction surface a renderer should draw.
type Control string

const (
	ControlInput       Control = "input"
	ControlTextarea    Control = "textarea"
	ControlSelect      Control = "select"
	ControlMultiSelect Control = "multiselect"
	ControlCheckbox    Control = "checkbox"
	ControlRadio       Control = "radio"
	ControlFile        Control = "file"
)

// Registry maps every field type to exactly one Behavior. Resolution is a
// table lookup; adding a type is a single Register call.
type Registry struct {
	mu        sync.RWMutex
	behaviors map[schema.FieldType]Behavior
}

// NewRegistry constructs a registry with the fourteen built-in types.
func NewRegistry() *Registry {
	reg := &Registry{behaviors: make(map[schema.FieldType]Behavior)}
	reg.registerBuiltins()
	return reg
}

// Register adds a behavior for a field type. Each type may be registered once.
func (r *Registry) Register(fieldType schema.FieldType, behavior Behavior) error {
	if r == nil {
		return fmt.Errorf("widgets: registry is nil")
	}
	if fieldType == "" {
		return fmt.Errorf("widgets: field type must not be empty")
	}
	if behavior.Kind == "" {
		return fmt.Errorf("widgets: behavior for %q has no value kind", fieldType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.behaviors == nil {
		r.behaviors = make(map[schema.FieldType]Behavior)
	}
	if _, exists := r.behaviors[fieldType]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateType, fieldType)
	}
	behavior.Type = fieldType
	r.behaviors[fieldType] = behavior
	return nil
}

// MustRegister panics when registration fails.
func (r *Registry) MustRegister(fieldType schema.FieldType, behavior Behavior) {
	if err := r.Register(fieldType, behavior); err != nil {
		panic(err)
	}
}

// Resolve returns the behavior registered for fieldType.
func (r *Registry) Resolve(fieldType schema.FieldType) (Behavior, error) {
	if r == nil {
		return Behavior{}, fmt.Errorf("%w: %q", ErrUnknownFieldType, fieldType)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	behavior, ok := r.behaviors[fieldType]
	if !ok {
		return Behavior{}, fmt.Errorf("%w: %q", ErrUnknownFieldType, fieldType)
	}
	return behavior, nil
}

// Types lists the registered field types sorted by name.
func (r *Registry) Types() []schema.FieldType {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.FieldType, 0, len(r.behaviors))
	for t := range r.behaviors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Defaults builds the initial value of every declared field of form.
func (r *Registry) Defaults(form schema.FormSchema) (map[string]any, error) {
	out := make(map[string]any)
	for _, field := range form.Fields() {
		behavior, err := r.Resolve(field.Type)
		if err != nil {
			return nil, fmt.Errorf("widgets: field %q: %w", field.Name, err)
		}
		out[field.Name] = behavior.Default()
	}
	return out, nil
}

func (r *Registry) registerBuiltins() {
	text := func(input string) Behavior {
		return Behavior{Control: ControlInput, InputType: input, Kind: KindText}
	}

	r.MustRegister(schema.FieldTypeText, text("text"))
	r.MustRegister(schema.FieldTypeEmail, text("email"))
	r.MustRegister(schema.FieldTypePassword, text("password"))
	r.MustRegister(schema.FieldTypeNumber, text("number"))
	r.MustRegister(schema.FieldTypeDate, text("date"))
	r.MustRegister(schema.FieldTypeTime, text("time"))
	r.MustRegister(schema.FieldTypeRange, text("range"))
	r.MustRegister(schema.FieldTypeColor, text("color"))
	r.MustRegister(schema.FieldTypeTextarea, Behavior{Control: ControlTextarea, Kind: KindText})
	r.MustRegister(schema.FieldTypeRadio, Behavior{Control: ControlRadio, InputType: "radio", Kind: KindText})
	r.MustRegister(schema.FieldTypeSelect, Behavior{Control: ControlSelect, Kind: KindText, OtherSentinel: true})
	r.MustRegister(schema.FieldTypeSelectMultiple, Behavior{Control: ControlMultiSelect, Kind: KindList})
	r.MustRegister(schema.FieldTypeCheckbox, Behavior{Control: ControlCheckbox, InputType: "checkbox", Kind: KindBool})
	r.MustRegister(schema.FieldTypeFile, Behavior{Control: ControlFile, InputType: "file", Kind: KindFile})
}
