package formengine

import (
	"context"
	"io/fs"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/internal/mockbackend"
)

func TestSampleSchemas(t *testing.T) {
	store, err := SampleSchemas()
	if err != nil {
		t.Fatalf("load samples: %v", err)
	}
	if diff := cmp.Diff([]string{"nursing-registration", "staff-survey"}, store.IDs()); diff != "" {
		t.Fatalf("sample ids mismatch (-want +got):\n%s", diff)
	}
	form, _ := store.Form("nursing-registration")
	if !form.PaymentRequired || form.PaymentDetails == nil || form.PaymentDetails.Amount != 500 {
		t.Fatalf("unexpected payment details %+v", form.PaymentDetails)
	}
}

func TestEmbeddedTemplates(t *testing.T) {
	if _, err := fs.Stat(EmbeddedTemplates(), "form.tpl"); err != nil {
		t.Fatalf("expected layout template: %v", err)
	}
}

func TestStack_LoginOpenRender(t *testing.T) {
	store, err := SampleSchemas()
	if err != nil {
		t.Fatalf("load samples: %v", err)
	}
	srv := httptest.NewServer(mockbackend.New(store).Handler())
	t.Cleanup(srv.Close)

	stack, err := NewStack(srv.URL)
	if err != nil {
		t.Fatalf("new stack: %v", err)
	}
	ctx := context.Background()

	sess, err := stack.Login(ctx, "admin@example.com", "admin")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Role != "admin" || stack.Session.Token() == "" {
		t.Fatalf("unexpected session %+v", sess)
	}

	form, err := stack.Open(ctx, "staff-survey")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	out, err := RenderHTML(form)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Ward Staff Survey", `name="shift_preference" value="Night"`, "<textarea"} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestNewStack_RejectsBadURL(t *testing.T) {
	if _, err := NewStack("://nope"); err == nil {
		t.Fatalf("expected error")
	}
}
