package schema

import (
	"errors"
	"os"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
)

func TestParse_SectionedYAML(t *testing.T) {
	data, err := os.ReadFile("testdata/registration.yaml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	form, err := Parse(data, "registration.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if form.ID != "nursing-2026" || form.Name != "Nursing Registration 2026" {
		t.Fatalf("unexpected identity %q/%q", form.ID, form.Name)
	}
	if !form.PaymentRequired || form.PaymentDetails == nil || form.PaymentDetails.Amount != 500 {
		t.Fatalf("expected payment details, got %+v", form.PaymentDetails)
	}
	if len(form.Sections) != 4 {
		t.Fatalf("expected 4 sections, got %d", len(form.Sections))
	}

	slot, ok := form.Field("time_slot")
	if !ok {
		t.Fatalf("time_slot missing")
	}
	want := []Option{
		{Label: "Morning", Value: "09:00-12:00"},
		{Label: "Afternoon", Value: "13:00-16:00"},
	}
	if diff := cmp.Diff(want, slot.Options); diff != "" {
		t.Fatalf("slot options mismatch (-want +got):\n%s", diff)
	}

	qualification, _ := form.Field("qualification")
	if diff := cmp.Diff([]Option{{Label: "GNM", Value: "GNM"}, {Label: "B.Sc Nursing", Value: "B.Sc Nursing"}}, qualification.Options); diff != "" {
		t.Fatalf("bare string options mismatch (-want +got):\n%s", diff)
	}

	if idx := form.Index("email"); idx != 1 {
		t.Fatalf("expected email at index 1, got %d", idx)
	}
	if idx := form.Index("missing"); idx != -1 {
		t.Fatalf("expected -1 for missing field, got %d", idx)
	}
}

func TestParse_FlatBackendJSON(t *testing.T) {
	data, err := os.ReadFile("testdata/flat.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	form, err := Parse(data, "flat.json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if form.ID != "665f1c2ab1" || form.Name != "Quick Survey" {
		t.Fatalf("expected _id/formName aliases to resolve, got %q/%q", form.ID, form.Name)
	}
	if len(form.Sections) != 1 || len(form.Sections[0].Fields) != 3 {
		t.Fatalf("expected flat fields wrapped into one section, got %+v", form.Sections)
	}

	favourite, _ := form.Field("favourite")
	want := []Option{{Label: "Red", Value: "Red"}, {Label: "Blue", Value: "blue"}}
	if diff := cmp.Diff(want, favourite.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Rejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "duplicate field",
			doc:  `{"id":"f","fields":[{"name":"a","type":"text"},{"name":"a","type":"email"}]}`,
			want: ErrDuplicateField,
		},
		{
			name: "unknown type",
			doc:  `{"id":"f","fields":[{"name":"a","type":"signature-pad"}]}`,
			want: ErrUnknownType,
		},
		{
			name: "empty",
			doc:  "   ",
			want: ErrEmptyDocument,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc), tc.name)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOverlay_ApplyLeavesBaseUntouched(t *testing.T) {
	base := FormSchema{
		ID: "f",
		Sections: []Section{{Fields: []Field{{
			Name:    "qualification",
			Type:    FieldTypeSelect,
			Options: []Option{{Label: "GNM", Value: "GNM"}},
		}}}},
	}
	field, _ := base.Field("qualification")

	overlay := NewOverlay()
	if !overlay.AddOption(field, Option{Value: " ANM "}) {
		t.Fatalf("expected new option to be added")
	}
	if overlay.AddOption(field, Option{Value: "ANM"}) {
		t.Fatalf("expected overlay duplicate to be ignored")
	}
	if overlay.AddOption(field, Option{Value: "GNM"}) {
		t.Fatalf("expected base duplicate to be ignored")
	}
	if overlay.AddOption(field, Option{Value: "  "}) {
		t.Fatalf("expected blank option to be ignored")
	}

	merged := overlay.Apply(base)
	got, _ := merged.Field("qualification")
	want := []Option{{Label: "GNM", Value: "GNM"}, {Label: "ANM", Value: "ANM"}}
	if diff := cmp.Diff(want, got.Options); diff != "" {
		t.Fatalf("merged options mismatch (-want +got):\n%s", diff)
	}

	original, _ := base.Field("qualification")
	if len(original.Options) != 1 {
		t.Fatalf("base schema mutated: %+v", original.Options)
	}
	if overlay.Len() != 1 {
		t.Fatalf("expected overlay length 1, got %d", overlay.Len())
	}
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"forms/survey.json": &fstest.MapFile{Data: []byte(`{"fields":[{"name":"a","type":"text"}]}`)},
		"forms/readme.md":   &fstest.MapFile{Data: []byte("ignored")},
		"forms/exam.yaml":   &fstest.MapFile{Data: []byte("id: exam\nfields:\n  - name: exam_date\n    type: date\n")},
	}

	store, err := LoadFS(fsys)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"exam", "survey"}, store.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	survey, ok := store.Form("survey")
	if !ok || survey.ID != "survey" {
		t.Fatalf("expected id derived from filename, got %+v", survey)
	}
}

func TestLoadFS_DuplicateID(t *testing.T) {
	fsys := fstest.MapFS{
		"a.json": &fstest.MapFile{Data: []byte(`{"id":"x","fields":[]}`)},
		"b.json": &fstest.MapFile{Data: []byte(`{"id":"x","fields":[]}`)},
	}
	if _, err := LoadFS(fsys); err == nil {
		t.Fatalf("expected duplicate form id error")
	}
}
