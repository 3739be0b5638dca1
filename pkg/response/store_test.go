package response

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStore_SeedsDefaultsAndResets(t *testing.T) {
	store := New(map[string]any{
		"full_name":   "",
		"declaration": false,
		"languages":   []string{},
		"photo":       FileRef{},
	})

	if err := store.Set("full_name", "Asha"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set("languages", []string{"Hindi"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set("photo", FileRef{Filename: "me.jpg", Data: []byte{1}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set("sameAsPermanent", true); err != nil {
		t.Fatalf("set: %v", err)
	}

	if got := store.String("full_name"); got != "Asha" {
		t.Fatalf("expected Asha, got %q", got)
	}
	if got := store.File("photo"); got.Filename != "me.jpg" {
		t.Fatalf("expected file ref, got %+v", got)
	}

	store.Reset()
	want := map[string]any{
		"full_name":   "",
		"declaration": false,
		"languages":   []string{},
		"photo":       FileRef{},
	}
	if diff := cmp.Diff(want, store.Snapshot()); diff != "" {
		t.Fatalf("reset mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ListsAreCopied(t *testing.T) {
	store := New(map[string]any{"languages": []string{}})
	input := []string{"Hindi"}
	_ = store.Set("languages", input)
	input[0] = "mutated"

	got := store.Strings("languages")
	if diff := cmp.Diff([]string{"Hindi"}, got); diff != "" {
		t.Fatalf("store aliased caller slice (-want +got):\n%s", diff)
	}
	got[0] = "again"
	if store.Strings("languages")[0] != "Hindi" {
		t.Fatalf("store leaked internal slice")
	}
}

func TestStore_RejectsUnsupportedValues(t *testing.T) {
	store := New(nil)
	if err := store.Set("age", 42); err == nil {
		t.Fatalf("expected error for int value")
	}
}

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  bool
	}{
		{"nil", nil, true},
		{"blank string", "", true},
		{"text", "x", false},
		{"false", false, true},
		{"true", true, false},
		{"empty list", []string{}, true},
		{"list", []string{"a"}, false},
		{"zero file", FileRef{}, true},
		{"file", FileRef{Filename: "a.pdf"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsEmpty(tc.value); got != tc.want {
				t.Fatalf("IsEmpty(%v) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}
