package schema

import (
	"strings"
	"sync"
)

// Overlay records options added during a session (the "Other" flow) without
// touching the base schema. Entries are append-only so the base snapshot can
// always be reloaded or diffed.
type Overlay struct {
	mu      sync.RWMutex
	options map[string][]Option
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{options: make(map[string][]Option)}
}

// AddOption appends an option for field unless base or an earlier overlay
// entry already carries the same value. It reports whether the option was
// added.
func (o *Overlay) AddOption(base Field, opt Option) bool {
	if o == nil {
		return false
	}
	opt = normalizeOption(Option{Label: strings.TrimSpace(opt.Label), Value: strings.TrimSpace(opt.Value)})
	if opt.Value == "" || base.HasOption(opt.Value) {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, existing := range o.options[base.Name] {
		if existing.Value == opt.Value {
			return false
		}
	}
	o.options[base.Name] = append(o.options[base.Name], opt)
	return true
}

// Options returns the overlay options recorded for a field.
func (o *Overlay) Options(field string) []Option {
	if o == nil {
		return nil
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Option(nil), o.options[field]...)
}

// Len reports the total number of overlay options.
func (o *Overlay) Len() int {
	if o == nil {
		return 0
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	total := 0
	for _, opts := range o.options {
		total += len(opts)
	}
	return total
}

// Apply returns a copy of base with overlay options appended after the
// declared ones. The base schema is left untouched.
func (o *Overlay) Apply(base FormSchema) FormSchema {
	merged := base.Clone()
	if o == nil {
		return merged
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.options) == 0 {
		return merged
	}

	for i := range merged.Sections {
		fields := merged.Sections[i].Fields
		for j := range fields {
			if extra := o.options[fields[j].Name]; len(extra) > 0 {
				fields[j].Options = append(fields[j].Options, extra...)
			}
		}
	}
	return merged
}
