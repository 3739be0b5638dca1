package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/internal/mockbackend"
	"github.com/goliatone/go-formengine/pkg/engine"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/testsupport"
)

type stubDriver struct {
	texts      []string
	picks      []string
	many       [][]string
	toggles    []bool
	paragraphs []string
	said       []string
	textPos    int
}

func next[T any](queue *[]T, kind string) (T, error) {
	var zero T
	if len(*queue) == 0 {
		return zero, errors.New("no " + kind + " scripted")
	}
	val := (*queue)[0]
	*queue = (*queue)[1:]
	return val, nil
}

func (s *stubDriver) Text(_ context.Context, _ Prompt) (string, error) {
	val, err := next(&s.texts, "text")
	if err == nil {
		s.textPos++
	}
	return val, err
}

func (s *stubDriver) Paragraph(_ context.Context, _ Prompt) (string, error) {
	return next(&s.paragraphs, "paragraph")
}

func (s *stubDriver) Toggle(_ context.Context, _, _ string, _ bool) (bool, error) {
	return next(&s.toggles, "toggle")
}

func (s *stubDriver) PickOne(_ context.Context, _ Choice) (string, error) {
	return next(&s.picks, "pick")
}

func (s *stubDriver) PickMany(_ context.Context, _ Choice) ([]string, error) {
	return next(&s.many, "multi pick")
}

func (s *stubDriver) Say(_ context.Context, line string) error {
	s.said = append(s.said, line)
	return nil
}

func openSession(t *testing.T, form schema.FormSchema, seed ...map[string]any) (*mockbackend.Server, *engine.Form) {
	t.Helper()
	b := testsupport.StartBackend(t, []schema.FormSchema{form},
		testsupport.WithServerOptions(mockbackend.WithCeilings(1, 1)))
	b.Seed(t, form.ID, seed...)
	session, err := engine.New(b.Client, engine.WithCeilings(1, 1)).Open(context.Background(), form.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return b.Server, session
}

func TestRun_WalksFieldsAndSubmits(t *testing.T) {
	form := schema.FormSchema{
		ID:           "survey",
		Name:         "Quick Survey",
		Instructions: "<p>Answer <b>all</b> questions &amp; submit.</p><script>alert(1)</script>",
		Sections: []schema.Section{{Title: "About you", Fields: []schema.Field{
			{Name: "full_name", Label: "Full Name", Type: schema.FieldTypeText, Required: true},
			{Name: "contact_number", Label: "Contact", Type: schema.FieldTypeText},
			{Name: "qualification", Type: schema.FieldTypeSelect, Options: []schema.Option{{Label: "GNM", Value: "GNM"}}},
			{Name: "languages", Type: schema.FieldTypeSelectMultiple, Options: []schema.Option{{Label: "Hindi", Value: "hi"}, {Label: "English", Value: "en"}}},
			{Name: "declaration", Label: "I agree", Type: schema.FieldTypeCheckbox, Required: true},
		}}},
	}
	srv, session := openSession(t, form)
	driver := &stubDriver{
		texts:   []string{"", "Asha", "123", "9876543210", "ANM"},
		picks:   []string{"Other"},
		many:    [][]string{{"en"}},
		toggles: []bool{true},
	}

	res, err := New(WithPromptDriver(driver)).Run(context.Background(), session)
	if err != nil {
		t.Fatalf("run: %v (info %v)", err, driver.said)
	}
	if res.SubmissionID == "" || res.PaymentRequired {
		t.Fatalf("unexpected result %+v", res)
	}

	subs := srv.Submissions("survey")
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}
	got := subs[0].Responses
	want := map[string]any{
		"full_name":      "Asha",
		"contact_number": "9876543210",
		"qualification":  "ANM",
		"languages":      []any{"en"},
		"declaration":    true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("responses mismatch (-want +got):\n%s", diff)
	}

	for _, msg := range []string{"Answer all questions & submit.", "x Full Name is required.", "x Invalid contact number."} {
		if !contains(driver.said, msg) {
			t.Fatalf("expected info %q in %v", msg, driver.said)
		}
	}
	for _, msg := range driver.said {
		if strings.Contains(msg, "alert") {
			t.Fatalf("instructions must be sanitized, got %q", msg)
		}
	}
}

func TestRun_FullSlotRepromptsWithWarning(t *testing.T) {
	form := schema.FormSchema{
		ID: "exam",
		Sections: []schema.Section{{Fields: []schema.Field{
			{Name: "time_slot", Label: "Slot", Type: schema.FieldTypeRadio, Required: true, Options: []schema.Option{
				{Label: "Morning", Value: "am"},
				{Label: "Afternoon", Value: "pm"},
			}},
		}}},
	}
	srv, session := openSession(t, form, map[string]any{"time_slot": "am"})
	driver := &stubDriver{picks: []string{"am", "pm"}}

	if _, err := New(WithPromptDriver(driver)).Run(context.Background(), session); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !contains(driver.said, "! Selected slot is full. Please choose another slot.") {
		t.Fatalf("expected capacity warning, got %v", driver.said)
	}
	subs := srv.Submissions("exam")
	if len(subs) != 2 || subs[1].Responses["time_slot"] != "pm" {
		t.Fatalf("expected afternoon booking, got %+v", subs)
	}
}

func TestRun_SkipsDisabledAndMirroredFields(t *testing.T) {
	form := schema.FormSchema{
		ID: "exp",
		Sections: []schema.Section{{Fields: []schema.Field{
			{Name: "years_of_experience", Type: schema.FieldTypeNumber, Required: true},
			{Name: "employer_name", Type: schema.FieldTypeText, Required: true},
			{Name: "permanent_city", Type: schema.FieldTypeText},
			{Name: "correspondence_city", Type: schema.FieldTypeText},
		}}},
	}
	srv, session := openSession(t, form)
	driver := &stubDriver{
		texts:   []string{"0", "Patna"},
		toggles: []bool{true},
	}

	if _, err := New(WithPromptDriver(driver)).Run(context.Background(), session); err != nil {
		t.Fatalf("run: %v", err)
	}
	if driver.textPos != 2 {
		t.Fatalf("expected employer and correspondence prompts skipped, consumed %d texts", driver.textPos)
	}
	got := srv.Submissions("exp")[0].Responses
	if got["correspondence_city"] != "Patna" || got["sameAsPermanent"] != true {
		t.Fatalf("unexpected responses %v", got)
	}
}

func TestRun_MissingFileRepromptsBeforeSubmit(t *testing.T) {
	form := schema.FormSchema{ID: "docs", Sections: []schema.Section{{Fields: []schema.Field{
		{Name: "passport_photo", Label: "Photo", Type: schema.FieldTypeFile, Required: true},
	}}}}
	srv, session := openSession(t, form)
	photo := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(photo, []byte("jpeg"), 0o600); err != nil {
		t.Fatalf("write photo: %v", err)
	}
	missing := filepath.Join(t.TempDir(), "gone.jpg")
	driver := &stubDriver{texts: []string{missing, photo}}

	if _, err := New(WithPromptDriver(driver)).Run(context.Background(), session); err != nil {
		t.Fatalf("run: %v (said %v)", err, driver.said)
	}
	if want := "x No readable file at " + missing + "."; !contains(driver.said, want) {
		t.Fatalf("expected %q in %v", want, driver.said)
	}
	subs := srv.Submissions("docs")
	if len(subs) != 1 || subs[0].Files["passport_photo"].Filename != "photo.jpg" {
		t.Fatalf("unexpected submissions %+v", subs)
	}
}

func TestRun_PropagatesDriverErrors(t *testing.T) {
	form := schema.FormSchema{ID: "one", Sections: []schema.Section{{Fields: []schema.Field{
		{Name: "note", Type: schema.FieldTypeTextarea},
	}}}}
	_, session := openSession(t, form)

	_, err := New(WithPromptDriver(&stubDriver{})).Run(context.Background(), session)
	if err == nil || !strings.Contains(err.Error(), "no paragraph scripted") {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
