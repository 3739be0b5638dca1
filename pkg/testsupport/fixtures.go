// Package testsupport holds helpers shared by package tests: schema
// fixtures and an in-process reference backend with a connected client.
package testsupport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-formengine/internal/mockbackend"
	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/schema"
)

// Backend is a running reference backend and a client pointed at it.
type Backend struct {
	Server *mockbackend.Server
	Client *backend.Client
	URL    string
}

// BackendOption customises StartBackend.
type BackendOption func(*backendConfig)

type backendConfig struct {
	server []mockbackend.Option
	client []backend.Option
	wrap   func(http.Handler) http.Handler
}

// WithServerOptions forwards options to the reference backend.
func WithServerOptions(opts ...mockbackend.Option) BackendOption {
	return func(cfg *backendConfig) {
		cfg.server = append(cfg.server, opts...)
	}
}

// WithClientOptions forwards options to the client.
func WithClientOptions(opts ...backend.Option) BackendOption {
	return func(cfg *backendConfig) {
		cfg.client = append(cfg.client, opts...)
	}
}

// WithMiddleware wraps the backend handler, e.g. to delay or count requests.
func WithMiddleware(wrap func(http.Handler) http.Handler) BackendOption {
	return func(cfg *backendConfig) {
		cfg.wrap = wrap
	}
}

// StartBackend serves forms from an httptest server that is closed when
// the test ends.
func StartBackend(t *testing.T, forms []schema.FormSchema, opts ...BackendOption) Backend {
	t.Helper()

	cfg := &backendConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	srv := mockbackend.New(schema.NewStore(forms...), cfg.server...)
	handler := srv.Handler()
	if cfg.wrap != nil {
		handler = cfg.wrap(handler)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client, err := backend.New(ts.URL, append([]backend.Option{backend.WithHTTPClient(ts.Client())}, cfg.client...)...)
	if err != nil {
		t.Fatalf("testsupport: client: %v", err)
	}
	return Backend{Server: srv, Client: client, URL: ts.URL}
}

// Seed submits each response set to formID and returns the submission ids.
func (b Backend) Seed(t *testing.T, formID string, responses ...map[string]any) []string {
	t.Helper()
	ids := make([]string, 0, len(responses))
	for _, values := range responses {
		res, err := b.Client.Submit(context.Background(), backend.SubmitRequest{FormID: formID, Responses: values})
		if err != nil {
			t.Fatalf("testsupport: seed %s: %v", formID, err)
		}
		ids = append(ids, res.SubmissionID)
	}
	return ids
}

// LoadSchema parses a JSON or YAML schema fixture.
func LoadSchema(t *testing.T, path string) schema.FormSchema {
	t.Helper()
	form, err := schema.LoadFile(path)
	if err != nil {
		t.Fatalf("testsupport: load schema: %v", err)
	}
	return form
}
