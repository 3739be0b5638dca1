package testsupport

import (
	"context"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/internal/mockbackend"
	"github.com/goliatone/go-formengine/pkg/schema"
)

func TestStartBackend_SeedAndWrap(t *testing.T) {
	form := LoadSchema(t, filepath.Join("..", "..", "fixtures", "staff-survey.json"))
	var requests int32
	b := StartBackend(t, nil, WithMiddleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requests, 1)
			next.ServeHTTP(w, r)
		})
	}))
	if _, err := b.Client.FetchForm(context.Background(), form.ID); err == nil {
		t.Fatalf("expected unknown form on empty backend")
	}

	b = StartBackend(t, []schema.FormSchema{form}, WithServerOptions(mockbackend.WithCeilings(1, 1)))
	ids := b.Seed(t, form.ID, map[string]any{"full_name": "Asha", "contact_number": "9876543210"})
	if len(ids) != 1 {
		t.Fatalf("expected one id, got %v", ids)
	}
	sub, ok := b.Server.Submission(ids[0])
	if !ok {
		t.Fatalf("seeded submission missing")
	}
	if diff := cmp.Diff("Asha", sub.Responses["full_name"]); diff != "" {
		t.Fatalf("responses mismatch (-want +got):\n%s", diff)
	}
	if atomic.LoadInt32(&requests) != 1 {
		t.Fatalf("middleware saw %d requests", requests)
	}
}
