package dependency

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-formengine/pkg/response"
	"github.com/goliatone/go-formengine/pkg/schema"
)

// SameAsPermanentKey is the synthetic toggle stored alongside declared
// fields when a form carries both permanent and correspondence addresses.
const SameAsPermanentKey = "sameAsPermanent"

var experienceKeywords = []string{
	"employer",
	"company",
	"designation",
	"job",
	"work",
	"employment",
	"experience_details",
}

// State is the derived view produced after rules run.
type State struct {
	// Disabled fields render disabled and are exempt from presence checks.
	Disabled map[string]bool
	// Mirrored fields currently copy their permanent counterpart.
	Mirrored map[string]bool
	// MirrorAvailable reports whether the sameAsPermanent toggle applies.
	MirrorAvailable bool
}

type mirrorPair struct {
	target string
	source string // empty when the schema declares no counterpart
}

// Engine evaluates the derived-value rules for one form session.
type Engine struct {
	pairs      []mirrorPair
	experience string
	gated      []string

	mu        sync.Mutex
	mirroring bool // toggle value seen by the last Apply
}

// New inspects form once and prepares the rules that apply to it.
func New(form schema.FormSchema) *Engine {
	fields := form.Fields()
	byLower := make(map[string]string, len(fields))
	for _, field := range fields {
		byLower[strings.ToLower(field.Name)] = field.Name
	}

	engine := &Engine{}

	hasPermanent := false
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field.Name), "permanent") {
			hasPermanent = true
			break
		}
	}
	if hasPermanent {
		for _, field := range fields {
			lower := strings.ToLower(field.Name)
			if field.Type == schema.FieldTypeFile || !strings.Contains(lower, "correspondence") {
				continue
			}
			source := byLower[strings.ReplaceAll(lower, "correspondence", "permanent")]
			engine.pairs = append(engine.pairs, mirrorPair{target: field.Name, source: source})
		}
	}

	for _, field := range fields {
		if field.Type == schema.FieldTypeNumber && strings.Contains(strings.ToLower(field.Name), "experience") {
			engine.experience = field.Name
			break
		}
	}
	if engine.experience != "" {
		for _, field := range fields {
			if field.Type == schema.FieldTypeFile || field.Name == engine.experience {
				continue
			}
			if containsAny(strings.ToLower(field.Name), experienceKeywords) {
				engine.gated = append(engine.gated, field.Name)
			}
		}
	}

	return engine
}

// MirrorAvailable reports whether the form has an address pair to mirror.
func (e *Engine) MirrorAvailable() bool {
	return e != nil && len(e.pairs) > 0
}

// Defaults adds the synthetic toggle to the declared defaults when the
// mirroring rule applies.
func (e *Engine) Defaults(declared map[string]any) map[string]any {
	if e.MirrorAvailable() {
		if _, exists := declared[SameAsPermanentKey]; !exists {
			declared[SameAsPermanentKey] = false
		}
	}
	return declared
}

// Apply runs every rule after changed was written to store and returns the
// derived state. Correspondence fields are cleared only when changed turns
// the toggle from true to false. Values of disabled fields are left
// untouched.
func (e *Engine) Apply(store *response.Store, changed string) (State, error) {
	state := State{
		Disabled:        make(map[string]bool),
		Mirrored:        make(map[string]bool),
		MirrorAvailable: e.MirrorAvailable(),
	}
	if e == nil || store == nil {
		return state, nil
	}

	if state.MirrorAvailable {
		if err := e.mirror(store, changed, state.Mirrored); err != nil {
			return state, err
		}
	}

	if e.experience != "" && experienceIsZero(store.String(e.experience)) {
		for _, name := range e.gated {
			state.Disabled[name] = true
		}
	}
	return state, nil
}

func (e *Engine) mirror(store *response.Store, changed string, mirrored map[string]bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	same := store.Bool(SameAsPermanentKey)
	was := e.mirroring
	e.mirroring = same

	switch {
	case same:
		for _, pair := range e.pairs {
			var value any = ""
			if pair.source != "" {
				if v, ok := store.Get(pair.source); ok {
					value = v
				}
			}
			if err := store.Set(pair.target, value); err != nil {
				return fmt.Errorf("dependency: mirror %q: %w", pair.target, err)
			}
			mirrored[pair.target] = true
		}
	case was && changed == SameAsPermanentKey:
		// Only switching mirroring off clears; rewriting false keeps edits.
		for _, pair := range e.pairs {
			if err := store.Set(pair.target, ""); err != nil {
				return fmt.Errorf("dependency: clear %q: %w", pair.target, err)
			}
		}
	}
	return nil
}

func experienceIsZero(raw string) bool {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	return err == nil && value == 0
}

func containsAny(name string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
