package engine

import (
	"github.com/goliatone/go-formengine/pkg/dependency"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/submit"
	"github.com/goliatone/go-formengine/pkg/widgets"
)

// FieldView is everything a renderer needs to draw one field.
type FieldView struct {
	Field     schema.Field
	Behavior  widgets.Behavior
	Options   []schema.Option
	Value     any
	Error     string
	Warning   string
	Disabled  bool
	Mirrored  bool
	OtherOpen bool
	Guidance  *widgets.FileGuidance
}

// SectionView is a titled group of fields.
type SectionView struct {
	Title  string
	Fields []FieldView
}

// View is a point-in-time snapshot of a form session.
type View struct {
	ID              string
	Name            string
	Instructions    string
	PaymentRequired bool
	PaymentDetails  *schema.PaymentDetails
	Sections        []SectionView
	MirrorAvailable bool
	SameAsPermanent bool
	Submitting      bool
	ResumedID       string
	Notice          string
	Result          *submit.Result
}

// Field returns the view of name.
func (v View) Field(name string) (FieldView, bool) {
	for _, section := range v.Sections {
		for _, field := range section.Fields {
			if field.Field.Name == name {
				return field, true
			}
		}
	}
	return FieldView{}, false
}

// View snapshots the session for rendering.
func (f *Form) View() View {
	form := f.Schema()
	values := f.store.Snapshot()

	f.mu.Lock()
	errs := f.errors.Clone()
	warnings := make(map[string]string, len(f.warnings))
	for k, v := range f.warnings {
		warnings[k] = v
	}
	state := f.state
	disabled := copyFlags(state.Disabled)
	mirrored := copyFlags(state.Mirrored)
	notice := f.notice
	var result *submit.Result
	if f.result != nil {
		res := *f.result
		result = &res
	}
	f.mu.Unlock()

	view := View{
		ID:              form.ID,
		Name:            form.Name,
		Instructions:    form.Instructions,
		PaymentRequired: form.PaymentRequired,
		PaymentDetails:  form.PaymentDetails,
		MirrorAvailable: state.MirrorAvailable,
		Submitting:      f.submitter.State() == submit.Submitting,
		ResumedID:       f.resume.SubmissionID(),
		Notice:          notice,
		Result:          result,
	}
	if state.MirrorAvailable {
		view.SameAsPermanent, _ = values[dependency.SameAsPermanentKey].(bool)
	}

	for _, section := range form.Sections {
		sv := SectionView{Title: section.Title}
		for _, field := range section.Fields {
			behavior, err := f.registry.Resolve(field.Type)
			if err != nil {
				continue
			}
			fv := FieldView{
				Field:     field,
				Behavior:  behavior,
				Options:   behavior.Options(field),
				Value:     values[field.Name],
				Error:     errs[field.Name],
				Warning:   warnings[field.Name],
				Disabled:  disabled[field.Name],
				Mirrored:  mirrored[field.Name],
				OtherOpen: f.others.IsOpen(field.Name),
			}
			if g, ok := widgets.Guidance(field); ok {
				fv.Guidance = &g
			}
			sv.Fields = append(sv.Fields, fv)
		}
		view.Sections = append(view.Sections, sv)
	}
	return view
}
