package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/goliatone/go-formengine/pkg/schema"
)

// Prompt describes a free-text question.
type Prompt struct {
	Label   string
	Help    string
	Default string
	Secret  bool
}

// Choice describes a question answered from a fixed option list. Answers
// are option values, never labels.
type Choice struct {
	Label    string
	Help     string
	Options  []schema.Option
	Selected []string
}

// PromptDriver is the terminal the renderer talks to. Tests script it.
type PromptDriver interface {
	Text(ctx context.Context, p Prompt) (string, error)
	Paragraph(ctx context.Context, p Prompt) (string, error)
	Toggle(ctx context.Context, label, help string, current bool) (bool, error)
	PickOne(ctx context.Context, c Choice) (string, error)
	PickMany(ctx context.Context, c Choice) ([]string, error)
	Say(ctx context.Context, line string) error
}

type surveyDriver struct {
	out   io.Writer
	stdio survey.AskOpt
}

// NewSurveyDriver returns the interactive driver on the process terminal.
func NewSurveyDriver() PromptDriver {
	return &surveyDriver{out: os.Stdout, stdio: survey.WithStdio(os.Stdin, os.Stdout, os.Stderr)}
}

func (d *surveyDriver) ask(ctx context.Context, prompt survey.Prompt, answer any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := survey.AskOne(prompt, answer, d.stdio)
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return err
}

func (d *surveyDriver) Text(ctx context.Context, p Prompt) (string, error) {
	var prompt survey.Prompt = &survey.Input{Message: p.Label, Help: p.Help, Default: p.Default}
	if p.Secret {
		prompt = &survey.Password{Message: p.Label, Help: p.Help}
	}
	var text string
	err := d.ask(ctx, prompt, &text)
	return text, err
}

func (d *surveyDriver) Paragraph(ctx context.Context, p Prompt) (string, error) {
	var text string
	err := d.ask(ctx, &survey.Multiline{Message: p.Label, Help: p.Help, Default: p.Default}, &text)
	return text, err
}

func (d *surveyDriver) Toggle(ctx context.Context, label, help string, current bool) (bool, error) {
	var yes bool
	err := d.ask(ctx, &survey.Confirm{Message: label, Help: help, Default: current}, &yes)
	return yes, err
}

func (d *surveyDriver) PickOne(ctx context.Context, c Choice) (string, error) {
	labels, byLabel := optionLabels(c.Options)
	prompt := &survey.Select{Message: c.Label, Help: c.Help, Options: labels}
	if picked := labelsFor(c.Options, c.Selected); len(picked) == 1 {
		prompt.Default = picked[0]
	}
	var label string
	if err := d.ask(ctx, prompt, &label); err != nil {
		return "", err
	}
	value, ok := byLabel[label]
	if !ok {
		return "", fmt.Errorf("tui: unknown choice %q", label)
	}
	return value, nil
}

func (d *surveyDriver) PickMany(ctx context.Context, c Choice) ([]string, error) {
	labels, byLabel := optionLabels(c.Options)
	prompt := &survey.MultiSelect{Message: c.Label, Help: c.Help, Options: labels}
	if picked := labelsFor(c.Options, c.Selected); len(picked) > 0 {
		prompt.Default = picked
	}
	var chosen []string
	if err := d.ask(ctx, prompt, &chosen); err != nil {
		return nil, err
	}
	values := make([]string, 0, len(chosen))
	for _, label := range chosen {
		values = append(values, byLabel[label])
	}
	return values, nil
}

func (d *surveyDriver) Say(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(d.out, line)
	return err
}

func optionLabel(opt schema.Option) string {
	if opt.Label != "" {
		return opt.Label
	}
	return opt.Value
}

func optionLabels(opts []schema.Option) ([]string, map[string]string) {
	labels := make([]string, 0, len(opts))
	byLabel := make(map[string]string, len(opts))
	for _, opt := range opts {
		label := optionLabel(opt)
		labels = append(labels, label)
		byLabel[label] = opt.Value
	}
	return labels, byLabel
}

func labelsFor(opts []schema.Option, values []string) []string {
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	var out []string
	for _, opt := range opts {
		if want[opt.Value] {
			out = append(out, optionLabel(opt))
		}
	}
	return out
}
