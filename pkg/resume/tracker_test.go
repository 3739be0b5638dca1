package resume

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/validation"
)

type fakeLookup struct {
	matches map[string]backend.ResumeResult
	err     error
	calls   int
}

func (f *fakeLookup) Resume(_ context.Context, _, aadhaar, phone string) (backend.ResumeResult, error) {
	f.calls++
	if f.err != nil {
		return backend.ResumeResult{}, f.err
	}
	return f.matches[aadhaar+"|"+phone], nil
}

func identityForm() schema.FormSchema {
	return schema.FormSchema{ID: "f1", Sections: []schema.Section{{Fields: []schema.Field{
		{Name: "aadhaar_number", Type: schema.FieldTypeText},
		{Name: "mobile_number", Type: schema.FieldTypeText},
		{Name: "full_name", Type: schema.FieldTypeText},
		{Name: "passport_photo", Type: schema.FieldTypeFile},
	}}}}
}

func aadhaar(t *testing.T, prefix string) string {
	t.Helper()
	k, err := validation.CheckDigit(prefix)
	if err != nil {
		t.Fatalf("check digit: %v", err)
	}
	return prefix + string(k)
}

func TestTracker_BindsAndDropsOnIdentityChange(t *testing.T) {
	id1 := aadhaar(t, "23456789012")
	id2 := aadhaar(t, "98765432101")
	lookup := &fakeLookup{matches: map[string]backend.ResumeResult{
		id1 + "|9123456789": {Success: true, SubmissionID: "s1", Responses: map[string]any{
			"full_name":      "Asha",
			"passport_photo": "uploads/me.jpg",
			"unknown_field":  "x",
		}},
		id2 + "|9123456789": {Success: true, SubmissionID: "s2"},
	}}
	tracker := New(identityForm(), lookup)
	if !tracker.Enabled() {
		t.Fatalf("expected tracker enabled")
	}
	ctx := context.Background()

	values := map[string]any{"aadhaar_number": id1, "mobile_number": "91234"}
	if match, err := tracker.Observe(ctx, values); err != nil || match != nil || lookup.calls != 0 {
		t.Fatalf("incomplete identity must not query: %v %v calls=%d", match, err, lookup.calls)
	}

	values["mobile_number"] = "9123456789"
	match, err := tracker.Observe(ctx, values)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if match == nil || match.SubmissionID != "s1" {
		t.Fatalf("expected match s1, got %+v", match)
	}
	if diff := cmp.Diff(map[string]any{"full_name": "Asha"}, match.Prefill); diff != "" {
		t.Fatalf("prefill mismatch (-want +got):\n%s", diff)
	}

	if again, _ := tracker.Observe(ctx, values); again != nil || lookup.calls != 1 {
		t.Fatalf("same identity must not be queried twice, calls=%d", lookup.calls)
	}

	values["mobile_number"] = "9123456780"
	if _, err := tracker.Observe(ctx, values); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if tracker.SubmissionID() != "" {
		t.Fatalf("expected id dropped after identity change")
	}

	values["aadhaar_number"] = id2
	values["mobile_number"] = "9123456789"
	if match, _ := tracker.Observe(ctx, values); match == nil || tracker.SubmissionID() != "s2" {
		t.Fatalf("expected later match to replace id, got %q", tracker.SubmissionID())
	}

	values["aadhaar_number"] = id1
	if match, _ := tracker.Observe(ctx, values); match == nil || tracker.SubmissionID() != "s1" {
		t.Fatalf("retyping the original identity must rebind, got %q", tracker.SubmissionID())
	}
}

func TestTracker_LookupErrorAllowsRetry(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("offline")}
	tracker := New(identityForm(), lookup)
	values := map[string]any{"aadhaar_number": aadhaar(t, "50000000000"), "mobile_number": "9123456789"}

	if _, err := tracker.Observe(context.Background(), values); err == nil {
		t.Fatalf("expected lookup error")
	}
	lookup.err = nil
	if _, err := tracker.Observe(context.Background(), values); err != nil || lookup.calls != 2 {
		t.Fatalf("expected retry after failure, calls=%d err=%v", lookup.calls, err)
	}
}

func TestTracker_DisabledWithoutIdentityFields(t *testing.T) {
	form := schema.FormSchema{Sections: []schema.Section{{Fields: []schema.Field{{Name: "mobile", Type: schema.FieldTypeText}}}}}
	if New(form, &fakeLookup{}).Enabled() {
		t.Fatalf("tracker must be inert without an aadhaar field")
	}
}
