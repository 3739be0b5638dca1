// Package formengine wires the backend client, the admin session and the
// form engine into one value for applications that talk to a single
// backend.
//
//	stack, err := formengine.NewStack("http://localhost:8080")
//	form, err := stack.Open(ctx, "nursing-registration")
//	result, err := tui.New().Run(ctx, form)
package formengine

import (
	"context"
	"fmt"

	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/engine"
	"github.com/goliatone/go-formengine/pkg/renderers/html"
	"github.com/goliatone/go-formengine/pkg/session"
)

// Stack bundles the pieces every session shares.
type Stack struct {
	Session *session.Holder
	Backend *backend.Client
	Engine  *engine.Engine
}

// StackOption customises NewStack.
type StackOption func(*stackConfig)

type stackConfig struct {
	backend []backend.Option
	engine  []engine.Option
	session []session.Option
}

// WithBackendOptions forwards options to the backend client.
func WithBackendOptions(opts ...backend.Option) StackOption {
	return func(cfg *stackConfig) {
		cfg.backend = append(cfg.backend, opts...)
	}
}

// WithEngineOptions forwards options to the engine.
func WithEngineOptions(opts ...engine.Option) StackOption {
	return func(cfg *stackConfig) {
		cfg.engine = append(cfg.engine, opts...)
	}
}

// WithSessionOptions forwards options to the session holder.
func WithSessionOptions(opts ...session.Option) StackOption {
	return func(cfg *stackConfig) {
		cfg.session = append(cfg.session, opts...)
	}
}

// NewStack builds a client for baseURL whose requests carry the holder's
// token, and an engine on top of it.
func NewStack(baseURL string, options ...StackOption) (*Stack, error) {
	cfg := &stackConfig{}
	for _, opt := range options {
		if opt != nil {
			opt(cfg)
		}
	}

	holder := session.NewHolder(cfg.session...)
	client, err := backend.New(baseURL, append([]backend.Option{backend.WithTokenSource(holder)}, cfg.backend...)...)
	if err != nil {
		return nil, fmt.Errorf("formengine: %w", err)
	}
	return &Stack{
		Session: holder,
		Backend: client,
		Engine:  engine.New(client, cfg.engine...),
	}, nil
}

// Login authenticates against the backend and keeps the token for later
// requests.
func (s *Stack) Login(ctx context.Context, email, password string) (session.Session, error) {
	return s.Session.Login(ctx, s.Backend, email, password)
}

// Open starts a session for formID.
func (s *Stack) Open(ctx context.Context, formID string) (*engine.Form, error) {
	return s.Engine.Open(ctx, formID)
}

// RenderHTML renders the current state of form with the built-in
// templates.
func RenderHTML(form *engine.Form, opts ...html.Option) ([]byte, error) {
	return html.New(opts...).Render(form.View())
}
