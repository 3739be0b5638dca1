// Package tui drives a form session from the terminal. Prompts come from a
// PromptDriver so the walk can be scripted in tests; the default driver
// uses survey.
package tui

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/capacity"
	"github.com/goliatone/go-formengine/pkg/dependency"
	"github.com/goliatone/go-formengine/pkg/engine"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/submit"
	"github.com/goliatone/go-formengine/pkg/validation"
	"github.com/goliatone/go-formengine/pkg/widgets"
)

// Session is the form state the renderer drives. *engine.Form satisfies it.
type Session interface {
	View() engine.View
	Input(ctx context.Context, name string, raw any) error
	Blur(ctx context.Context, name string) (*validation.FieldError, error)
	CommitOther(name, text string) (string, error)
	Submit(ctx context.Context) (submit.Result, error)
}

var _ Session = (*engine.Form)(nil)

// Renderer walks sections in order and prompts every enabled field.
type Renderer struct {
	driver      PromptDriver
	theme       Theme
	maxAttempts int
	logger      *zap.Logger
}

// New constructs a TUI renderer using the survey driver unless overridden.
func New(options ...Option) *Renderer {
	r := &Renderer{
		theme:       Theme{WarningPrefix: "! ", ErrorPrefix: "x "},
		maxAttempts: 5,
		logger:      zap.NewNop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.driver == nil {
		r.driver = NewSurveyDriver()
	}
	return r
}

// Name reports the renderer identifier.
func (r *Renderer) Name() string {
	return "tui"
}

// Run prompts every field, then submits. Fields rejected on submit are
// prompted again until the submit goes through or a prompt fails.
func (r *Renderer) Run(ctx context.Context, session Session) (submit.Result, error) {
	if session == nil {
		return submit.Result{}, errors.New("tui: session is nil")
	}
	view := session.View()
	if err := r.intro(ctx, view); err != nil {
		return submit.Result{}, err
	}

	toggled := false
	for _, section := range view.Sections {
		if section.Title != "" {
			if err := r.driver.Say(ctx, "== "+section.Title+" =="); err != nil {
				return submit.Result{}, err
			}
		}
		for _, field := range section.Fields {
			if !toggled && view.MirrorAvailable && isCorrespondence(field.Field) {
				toggled = true
				if err := r.promptMirror(ctx, session); err != nil {
					return submit.Result{}, err
				}
			}
			if err := r.promptField(ctx, session, field.Field.Name); err != nil {
				return submit.Result{}, err
			}
		}
	}

	for attempt := 1; ; attempt++ {
		res, err := session.Submit(ctx)
		if err == nil {
			return res, nil
		}
		names, fixable := r.rejected(session, err)
		if !fixable {
			return submit.Result{}, err
		}
		if r.maxAttempts > 0 && attempt >= r.maxAttempts {
			return submit.Result{}, fmt.Errorf("%w: %v", ErrTooManyAttempts, err)
		}
		for _, name := range names {
			if err := r.promptField(ctx, session, name); err != nil {
				return submit.Result{}, err
			}
		}
	}
}

func (r *Renderer) intro(ctx context.Context, view engine.View) error {
	lines := []string{view.Name}
	if text := strings.TrimSpace(view.Instructions); text != "" {
		lines = append(lines, plainText(text))
	}
	if view.PaymentRequired && view.PaymentDetails != nil {
		lines = append(lines, fmt.Sprintf("Fee: %.2f %s", view.PaymentDetails.Amount, view.PaymentDetails.Currency))
	}
	for _, line := range lines {
		if err := r.driver.Say(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) promptMirror(ctx context.Context, session Session) error {
	same, err := r.driver.Toggle(ctx, "Correspondence address same as permanent address?", "", session.View().SameAsPermanent)
	if err != nil {
		return err
	}
	return session.Input(ctx, dependency.SameAsPermanentKey, same)
}

// promptField asks for one field until blur validation passes. Disabled
// and mirrored fields are skipped.
func (r *Renderer) promptField(ctx context.Context, session Session, name string) error {
	for attempt := 1; ; attempt++ {
		fv, ok := session.View().Field(name)
		if !ok {
			return fmt.Errorf("tui: unknown field %q", name)
		}
		if fv.Disabled || fv.Mirrored {
			return nil
		}
		if fv.Error != "" && attempt == 1 {
			r.warn(ctx, r.theme.ErrorPrefix, fv.Error)
		}

		err := r.ask(ctx, session, fv)
		var reached *capacity.ReachedError
		var missing *missingFileError
		switch {
		case errors.As(err, &reached):
			r.warn(ctx, r.theme.WarningPrefix, reached.Message())
		case errors.As(err, &missing):
			r.warn(ctx, r.theme.ErrorPrefix, missing.Error())
		case err != nil:
			return err
		default:
			fe, err := session.Blur(ctx, name)
			switch {
			case errors.Is(err, engine.ErrStaleResult):
				return nil
			case err != nil:
				return err
			case fe == nil:
				return nil
			}
			r.warn(ctx, r.theme.ErrorPrefix, fe.Message)
		}

		if r.maxAttempts > 0 && attempt >= r.maxAttempts {
			return fmt.Errorf("%w: %s", ErrTooManyAttempts, name)
		}
	}
}

func (r *Renderer) ask(ctx context.Context, session Session, fv engine.FieldView) error {
	field := fv.Field
	label := field.DisplayLabel()
	if field.Required {
		label += " *"
	}
	help := field.Placeholder
	if fv.Guidance != nil {
		help = fv.Guidance.Hint()
	}

	switch fv.Behavior.Control {
	case widgets.ControlCheckbox:
		current, _ := fv.Value.(bool)
		value, err := r.driver.Toggle(ctx, label, help, current)
		if err != nil {
			return err
		}
		return session.Input(ctx, field.Name, value)

	case widgets.ControlSelect, widgets.ControlRadio:
		current, _ := fv.Value.(string)
		value, err := r.driver.PickOne(ctx, Choice{Label: label, Help: help, Options: fv.Options, Selected: []string{current}})
		if err != nil {
			return err
		}
		if err := session.Input(ctx, field.Name, value); err != nil {
			return err
		}
		if fv.Behavior.OtherSentinel && value == widgets.OtherOption && !field.HasOption(widgets.OtherOption) {
			return r.askOther(ctx, session, field)
		}
		return nil

	case widgets.ControlMultiSelect:
		current, _ := fv.Value.([]string)
		values, err := r.driver.PickMany(ctx, Choice{Label: label, Help: help, Options: fv.Options, Selected: current})
		if err != nil {
			return err
		}
		return session.Input(ctx, field.Name, values)

	case widgets.ControlTextarea:
		current, _ := fv.Value.(string)
		text, err := r.driver.Paragraph(ctx, Prompt{Label: label, Default: current, Help: help})
		if err != nil {
			return err
		}
		return session.Input(ctx, field.Name, text)

	case widgets.ControlFile:
		path, err := r.driver.Text(ctx, Prompt{Label: label + " (file path)", Help: help})
		if err != nil {
			return err
		}
		path = strings.TrimSpace(path)
		if path != "" {
			if info, err := os.Stat(path); err != nil || info.IsDir() {
				return &missingFileError{path: path}
			}
		}
		return session.Input(ctx, field.Name, path)

	default:
		current, _ := fv.Value.(string)
		text, err := r.driver.Text(ctx, Prompt{
			Label:   label,
			Default: current,
			Help:    help,
			Secret:  fv.Behavior.InputType == "password",
		})
		if err != nil {
			return err
		}
		return session.Input(ctx, field.Name, text)
	}
}

func (r *Renderer) askOther(ctx context.Context, session Session, field schema.Field) error {
	for {
		text, err := r.driver.Text(ctx, Prompt{Label: "Please specify " + field.DisplayLabel()})
		if err != nil {
			return err
		}
		_, err = session.CommitOther(field.Name, text)
		if errors.Is(err, dependency.ErrEmptyOther) {
			r.warn(ctx, r.theme.ErrorPrefix, "Please enter a value.")
			continue
		}
		return err
	}
}

// rejected lists the fields to prompt again after a failed submit.
func (r *Renderer) rejected(session Session, err error) ([]string, bool) {
	var failed *submit.ValidationFailedError
	var subErr *submit.SubmissionError
	var errs validation.ErrorMap
	switch {
	case errors.As(err, &failed):
		errs = failed.Errors
	case errors.As(err, &subErr) && len(subErr.FieldErrors) > 0:
		errs = subErr.FieldErrors
	default:
		return nil, false
	}

	var names []string
	for _, section := range session.View().Sections {
		for _, field := range section.Fields {
			if _, bad := errs[field.Field.Name]; bad {
				names = append(names, field.Field.Name)
			}
		}
	}
	r.logger.Debug("re-prompting rejected fields", zap.Strings("fields", names))
	return names, len(names) > 0
}

func (r *Renderer) warn(ctx context.Context, prefix, msg string) {
	if err := r.driver.Say(ctx, prefix+msg); err != nil {
		r.logger.Debug("info prompt failed", zap.Error(err))
	}
}

func isCorrespondence(field schema.Field) bool {
	return field.Type != schema.FieldTypeFile && strings.Contains(strings.ToLower(field.Name), "correspondence")
}

// plainText drops every tag from backend-authored instructions.
func plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(bluemonday.StrictPolicy().Sanitize(s)))
}
