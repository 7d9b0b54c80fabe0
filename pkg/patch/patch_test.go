package patch

import (
	"reflect"
	"strings"
	"testing"
)

func doc() map[string]any {
	return map[string]any{
		"name": "alpha",
		"nested": map[string]any{
			"count": float64(3),
		},
		"items": []any{"a", "b", "c"},
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		patch Patch
		want  any
	}{
		{
			name:  "add new key",
			patch: Patch{Add("/status", "ready")},
			want: map[string]any{
				"name":   "alpha",
				"nested": map[string]any{"count": float64(3)},
				"items":  []any{"a", "b", "c"},
				"status": "ready",
			},
		},
		{
			name:  "add overwrites existing object key",
			patch: Patch{Add("/name", "beta")},
			want: map[string]any{
				"name":   "beta",
				"nested": map[string]any{"count": float64(3)},
				"items":  []any{"a", "b", "c"},
			},
		},
		{
			name:  "add into array inserts",
			patch: Patch{Add("/items/1", "x")},
			want: map[string]any{
				"name":   "alpha",
				"nested": map[string]any{"count": float64(3)},
				"items":  []any{"a", "x", "b", "c"},
			},
		},
		{
			name:  "add with dash appends",
			patch: Patch{Add("/items/-", "z")},
			want: map[string]any{
				"name":   "alpha",
				"nested": map[string]any{"count": float64(3)},
				"items":  []any{"a", "b", "c", "z"},
			},
		},
		{
			name:  "remove object key",
			patch: Patch{Remove("/nested")},
			want: map[string]any{
				"name":  "alpha",
				"items": []any{"a", "b", "c"},
			},
		},
		{
			name:  "remove array element shifts",
			patch: Patch{Remove("/items/0")},
			want: map[string]any{
				"name":   "alpha",
				"nested": map[string]any{"count": float64(3)},
				"items":  []any{"b", "c"},
			},
		},
		{
			name:  "replace existing value",
			patch: Patch{Replace("/nested/count", float64(9))},
			want: map[string]any{
				"name":   "alpha",
				"nested": map[string]any{"count": float64(9)},
				"items":  []any{"a", "b", "c"},
			},
		},
		{
			name:  "move between keys",
			patch: Patch{Move("/name", "/nested/label")},
			want: map[string]any{
				"nested": map[string]any{"count": float64(3), "label": "alpha"},
				"items":  []any{"a", "b", "c"},
			},
		},
		{
			name:  "copy leaves source in place",
			patch: Patch{Copy("/name", "/alias")},
			want: map[string]any{
				"name":   "alpha",
				"alias":  "alpha",
				"nested": map[string]any{"count": float64(3)},
				"items":  []any{"a", "b", "c"},
			},
		},
		{
			name:  "test passes on equal value",
			patch: Patch{Test("/name", "alpha")},
			want:  doc(),
		},
		{
			name: "operations are order dependent",
			patch: Patch{
				Add("/status", "pending"),
				Replace("/status", "done"),
			},
			want: map[string]any{
				"name":   "alpha",
				"nested": map[string]any{"count": float64(3)},
				"items":  []any{"a", "b", "c"},
				"status": "done",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.patch.Apply(doc())
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Apply = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name    string
		patch   Patch
		wantMsg string
	}{
		{"remove missing key", Patch{Remove("/absent")}, "not found"},
		{"replace missing key", Patch{Replace("/absent", 1)}, "not found"},
		{"move missing source", Patch{Move("/absent", "/dst")}, "not found"},
		{"copy missing source", Patch{Copy("/absent", "/dst")}, "not found"},
		{"test mismatch", Patch{Test("/name", "beta")}, "test failed"},
		{"array index out of bounds", Patch{Remove("/items/9")}, "out of bounds"},
		{"bad pointer", Patch{Add("no-slash", 1)}, "must start with /"},
		{"unknown op", Patch{{Op: "explode", Path: "/name"}}, `unknown op "explode"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.patch.Apply(doc()); err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Apply err = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestApplyErrorNamesOpIndex(t *testing.T) {
	p := Patch{
		Add("/ok", 1),
		Remove("/absent"),
	}
	_, err := p.Apply(doc())
	if err == nil || !strings.Contains(err.Error(), "patch op 1 (remove /absent)") {
		t.Errorf("Apply err = %v, want op index 1 named", err)
	}
}

func TestPointerEscaping(t *testing.T) {
	d := map[string]any{
		"a/b": "slash",
		"m~n": "tilde",
	}
	p := Patch{
		Test("/a~1b", "slash"),
		Test("/m~0n", "tilde"),
	}
	if _, err := p.Apply(d); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestReplaceWholeDocument(t *testing.T) {
	got, err := Patch{Replace("", map[string]any{"fresh": true})}.Apply(doc())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := map[string]any{"fresh": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply = %#v, want %#v", got, want)
	}
}

func TestAddCreatesRootFromNil(t *testing.T) {
	got, err := Patch{Add("", map[string]any{"k": "v"})}.Apply(nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := map[string]any{"k": "v"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply = %#v, want %#v", got, want)
	}
}
