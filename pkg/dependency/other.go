package dependency

import (
	"errors"
	"strings"
	"sync"

	"github.com/goliatone/go-formengine/pkg/schema"
)

// ErrEmptyOther is returned when the "Other" sub-field is committed blank.
// The sub-field stays open.
var ErrEmptyOther = errors.New("dependency: other value is empty")

// OtherInjector tracks open "Other" sub-fields and records committed values
// in the session overlay.
type OtherInjector struct {
	mu      sync.Mutex
	overlay *schema.Overlay
	open    map[string]bool
}

// NewOtherInjector binds the injector to overlay.
func NewOtherInjector(overlay *schema.Overlay) *OtherInjector {
	if overlay == nil {
		overlay = schema.NewOverlay()
	}
	return &OtherInjector{overlay: overlay, open: make(map[string]bool)}
}

// Overlay returns the overlay receiving committed options.
func (o *OtherInjector) Overlay() *schema.Overlay {
	return o.overlay
}

// Select records a choice on a select field. Choosing sentinel opens the
// sub-field and reports false, meaning the choice must not be stored; any
// other choice closes it and reports true.
func (o *OtherInjector) Select(field schema.Field, value, sentinel string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if value == sentinel && !field.HasOption(sentinel) {
		o.open[field.Name] = true
		return false
	}
	delete(o.open, field.Name)
	return true
}

// Commit appends text as a new option (unless it duplicates a base or
// overlay option), closes the sub-field and returns the value to store.
func (o *OtherInjector) Commit(field schema.Field, text string) (string, error) {
	value := strings.TrimSpace(text)
	if value == "" {
		return "", ErrEmptyOther
	}
	o.overlay.AddOption(field, schema.Option{Label: value, Value: value})

	o.mu.Lock()
	delete(o.open, field.Name)
	o.mu.Unlock()
	return value, nil
}

// IsOpen reports whether the sub-field of name is showing.
func (o *OtherInjector) IsOpen(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open[name]
}

// Reset closes every sub-field. Overlay options survive for the session.
func (o *OtherInjector) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open = make(map[string]bool)
}
