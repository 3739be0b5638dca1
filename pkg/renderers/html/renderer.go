// Package html renders a form session snapshot to an HTML fragment using
// embedded pongo2 templates, one per widget control.
package html

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/dependency"
	"github.com/goliatone/go-formengine/pkg/engine"
	"github.com/goliatone/go-formengine/pkg/response"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/widgets"
)

//go:embed templates/*.tpl
var embeddedTemplates embed.FS

const layoutTemplate = "form.tpl"

// ErrMissingTemplate is returned when no template exists for a control.
var ErrMissingTemplate = errors.New("html: missing template")

// TemplatesFS exposes the embedded template bundle so callers can copy and
// customise it before passing it back through WithTemplates.
func TemplatesFS() fs.FS {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return embeddedTemplates
	}
	return sub
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithTemplates replaces the embedded bundle. The FS must hold form.tpl and
// one <control>.tpl per widget control.
func WithTemplates(files fs.FS) Option {
	return func(r *Renderer) {
		if files != nil {
			r.files = files
		}
	}
}

// WithPolicy overrides the sanitizer applied to form instructions.
func WithPolicy(policy *bluemonday.Policy) Option {
	return func(r *Renderer) {
		if policy != nil {
			r.policy = policy
		}
	}
}

// WithAction sets the form's action attribute.
func WithAction(action string) Option {
	return func(r *Renderer) {
		r.action = strings.TrimSpace(action)
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Renderer draws engine views as HTML.
type Renderer struct {
	files  fs.FS
	policy *bluemonday.Policy
	action string
	logger *zap.Logger

	set       *pongo2.TemplateSet
	mu        sync.RWMutex
	templates map[string]*pongo2.Template
}

// New constructs a renderer over the embedded templates.
func New(options ...Option) *Renderer {
	r := &Renderer{
		files:     TemplatesFS(),
		policy:    bluemonday.UGCPolicy(),
		logger:    zap.NewNop(),
		templates: make(map[string]*pongo2.Template),
	}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	r.set = pongo2.NewSet("formengine-html", pongo2.NewFSLoader(r.files))
	return r
}

// Name identifies the renderer.
func (r *Renderer) Name() string {
	return "html"
}

// ContentType reports the MIME type of rendered output.
func (r *Renderer) ContentType() string {
	return "text/html; charset=utf-8"
}

// Render returns the HTML for view.
func (r *Renderer) Render(view engine.View) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.RenderTo(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderTo writes the HTML for view to w.
func (r *Renderer) RenderTo(w io.Writer, view engine.View) error {
	form := formContext{
		ID:           view.ID,
		Name:         view.Name,
		Instructions: r.policy.Sanitize(view.Instructions),
		Notice:       view.Notice,
		ResumedID:    view.ResumedID,
		Submitting:   view.Submitting,
	}
	if view.PaymentRequired && view.PaymentDetails != nil {
		form.Fee = fee(*view.PaymentDetails)
	}

	toggled := false
	for _, section := range view.Sections {
		sc := sectionContext{Title: section.Title}
		for _, fv := range section.Fields {
			if view.MirrorAvailable && !toggled && isCorrespondence(fv.Field) {
				toggled = true
				html, err := r.renderField(widgets.ControlCheckbox, mirrorToggle(view.SameAsPermanent))
				if err != nil {
					return err
				}
				sc.Fields = append(sc.Fields, html)
			}
			html, err := r.renderField(fv.Behavior.Control, newFieldContext(fv))
			if err != nil {
				return err
			}
			sc.Fields = append(sc.Fields, html)
		}
		form.Sections = append(form.Sections, sc)
	}

	layout, err := r.template(layoutTemplate)
	if err != nil {
		return err
	}
	if err := layout.ExecuteWriter(pongo2.Context{"form": form, "action": r.action}, w); err != nil {
		return fmt.Errorf("html: execute %s: %w", layoutTemplate, err)
	}
	return nil
}

func (r *Renderer) renderField(control widgets.Control, field fieldContext) (string, error) {
	name := string(control) + ".tpl"
	tmpl, err := r.template(name)
	if err != nil {
		return "", err
	}
	out, err := tmpl.Execute(pongo2.Context{"field": field})
	if err != nil {
		return "", fmt.Errorf("html: render field %q: %w", field.Name, err)
	}
	return out, nil
}

func (r *Renderer) template(name string) (*pongo2.Template, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tmpl, ok := r.templates[name]; ok {
		return tmpl, nil
	}
	if _, err := fs.Stat(r.files, name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingTemplate, name)
	}
	tmpl, err := r.set.FromFile(name)
	if err != nil {
		return nil, fmt.Errorf("html: load %s: %w", name, err)
	}
	r.logger.Debug("template loaded", zap.String("template", name))
	r.templates[name] = tmpl
	return tmpl, nil
}

type formContext struct {
	ID           string
	Name         string
	Instructions string
	Fee          string
	Notice       string
	ResumedID    string
	Submitting   bool
	Sections     []sectionContext
}

type sectionContext struct {
	Title  string
	Fields []string
}

type optionContext struct {
	Label    string
	Value    string
	Selected bool
}

type fieldContext struct {
	ID          string
	Name        string
	Label       string
	InputType   string
	Placeholder string
	Value       string
	Checked     bool
	Required    bool
	Disabled    bool
	Mirrored    bool
	OtherOpen   bool
	Options     []optionContext
	Min         string
	Max         string
	Step        string
	MaxLength   string
	Rows        int
	Accept      string
	Hint        string
	Error       string
	Warning     string
}

func newFieldContext(fv engine.FieldView) fieldContext {
	field := fv.Field
	fc := fieldContext{
		ID:          "field-" + field.Name,
		Name:        field.Name,
		Label:       field.DisplayLabel(),
		InputType:   fv.Behavior.InputType,
		Placeholder: field.Placeholder,
		Required:    field.Required,
		Disabled:    fv.Disabled,
		Mirrored:    fv.Mirrored,
		OtherOpen:   fv.OtherOpen,
		Min:         formatFloat(field.Min),
		Max:         formatFloat(field.Max),
		Step:        formatFloat(field.Step),
		Rows:        field.Rows,
		Error:       fv.Error,
		Warning:     fv.Warning,
	}
	if fc.InputType == "" {
		fc.InputType = "text"
	}
	if fc.Rows <= 0 {
		fc.Rows = 4
	}
	if field.MaxLength != nil {
		fc.MaxLength = strconv.Itoa(*field.MaxLength)
	}
	if fv.Guidance != nil {
		fc.Accept = fv.Guidance.Extension
		fc.Hint = fv.Guidance.Hint()
	}

	selected := make(map[string]bool)
	switch v := fv.Value.(type) {
	case string:
		fc.Value = v
		selected[v] = true
	case bool:
		fc.Checked = v
	case []string:
		for _, item := range v {
			selected[item] = true
		}
	case response.FileRef:
		fc.Value = v.Filename
	}
	for _, opt := range fv.Options {
		fc.Options = append(fc.Options, optionContext{
			Label:    opt.Label,
			Value:    opt.Value,
			Selected: selected[opt.Value] || (fv.OtherOpen && opt.Value == widgets.OtherOption),
		})
	}
	return fc
}

func mirrorToggle(checked bool) fieldContext {
	return fieldContext{
		ID:      "field-" + dependency.SameAsPermanentKey,
		Name:    dependency.SameAsPermanentKey,
		Label:   "Correspondence address same as permanent address",
		Checked: checked,
	}
}

func isCorrespondence(field schema.Field) bool {
	return field.Type != schema.FieldTypeFile && strings.Contains(strings.ToLower(field.Name), "correspondence")
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fee(details schema.PaymentDetails) string {
	currency := strings.ToUpper(strings.TrimSpace(details.Currency))
	if currency == "" {
		currency = "INR"
	}
	return fmt.Sprintf("%s %.2f", currency, details.Amount)
}

// Controls lists the controls the embedded bundle provides templates for.
func Controls() []string {
	entries, err := fs.ReadDir(TemplatesFS(), ".")
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".tpl")
		if name == "form" || name == "feedback" {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
