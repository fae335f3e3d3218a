package field

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCloneFieldsIsDeep(t *testing.T) {
	orig := []FlatField{
		{FieldID: 1, FieldPath: "a.b", CurrentValue: map[string]any{"k": []any{float64(1), float64(2)}}},
		{FieldID: 2, FieldPath: "a.c", CurrentValue: "x",
			MutationInfo: &MutationInfo{OriginalValue: "x", MutationType: "max_value"}},
	}
	cp := CloneFields(orig)
	if diff := cmp.Diff(orig, cp); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	cp[0].CurrentValue.(map[string]any)["k"].([]any)[0] = float64(99)
	cp[1].MutationInfo.MutationType = "changed"
	if orig[0].CurrentValue.(map[string]any)["k"].([]any)[0] != float64(1) {
		t.Error("nested container was shared, not copied")
	}
	if orig[1].MutationInfo.MutationType != "max_value" {
		t.Error("mutation info was shared, not copied")
	}
}

func TestInject(t *testing.T) {
	tree := func() map[string]any {
		return map[string]any{
			"cfg": map[string]any{
				"srbToAddModList": []any{
					map[string]any{"srbIdentity": float64(1)},
					map[string]any{"srbIdentity": float64(2)},
				},
				"reportAmount": "r4",
			},
		}
	}

	tr := tree()
	if err := Inject(tr, "cfg.srbToAddModList[1].srbIdentity", float64(3)); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	got := tr["cfg"].(map[string]any)["srbToAddModList"].([]any)[1].(map[string]any)["srbIdentity"]
	if got != float64(3) {
		t.Errorf("injected value = %v, want 3", got)
	}

	tr = tree()
	if err := Inject(tr, "cfg.reportAmount", "infinity"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if tr["cfg"].(map[string]any)["reportAmount"] != "infinity" {
		t.Error("top-level map injection failed")
	}
}

func TestInjectErrors(t *testing.T) {
	tree := map[string]any{
		"cfg": map[string]any{
			"list": []any{float64(1)},
		},
	}
	cases := []struct {
		path string
	}{
		{"cfg.missing.deep"},
		{"cfg.list[5]"},
		{"cfg.list.key"},
		{"cfg[0]"},
		{"cfg.list[x]"},
		{""},
	}
	for _, tc := range cases {
		err := Inject(tree, tc.path, "v")
		if err == nil {
			t.Errorf("Inject(%q): expected error", tc.path)
			continue
		}
		var re *ReconstructionError
		if !errors.As(err, &re) {
			t.Errorf("Inject(%q): error %T is not a ReconstructionError", tc.path, err)
		}
	}
}

func TestReconstruct(t *testing.T) {
	tree := map[string]any{
		"cfg": map[string]any{
			"srbIdentity":  float64(1),
			"reportAmount": "r4",
		},
	}
	fields := []FlatField{
		{FieldID: 1, FieldPath: "cfg.srbIdentity", SuggestedValue: float64(4),
			MutationInfo: &MutationInfo{OriginalValue: float64(1), MutationType: "above_max"}},
		{FieldID: 2, FieldPath: "cfg.reportAmount", SuggestedValue: "r8"},
	}

	out, err := Reconstruct(tree, fields)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	cfg := out["cfg"].(map[string]any)
	if cfg["srbIdentity"] != float64(4) {
		t.Error("mutated field was not written back")
	}
	// Field 2 carries no mutation info; its suggested value is ignored.
	if cfg["reportAmount"] != "r4" {
		t.Error("unmutated field must keep its original value")
	}
	// Input tree stays untouched.
	if tree["cfg"].(map[string]any)["srbIdentity"] != float64(1) {
		t.Error("Reconstruct mutated its input tree")
	}
}

func TestLooksLikeBitstringPair(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{[]any{float64(5), float64(12)}, true},
		{[]any{float64(5), float64(100)}, false},
		{[]any{float64(5), float64(-1)}, false},
		{[]any{float64(5)}, false},
		{[]any{"x", float64(3)}, false},
		{"nope", false},
	}
	for _, tc := range cases {
		if got := LooksLikeBitstringPair(tc.in); got != tc.want {
			t.Errorf("LooksLikeBitstringPair(%#v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
