package changes

import (
	"strings"
	"testing"
)

func TestUnchangedIgnoresBookkeeping(t *testing.T) {
	tr := NewTracker()
	a := map[string]any{"_id": "doc_a", "_rev": "1-abc", "val": float64(23)}
	b := map[string]any{"_id": "doc_a", "_rev": "2-def", "val": 23}
	same, err := tr.Unchanged(a, b)
	if err != nil {
		t.Fatalf("Unchanged failed, details: %v", err)
	}
	if !same {
		t.Fatalf("expected documents differing only in _rev to be unchanged")
	}
}

func TestUnchangedDetectsChanges(t *testing.T) {
	tr := NewTracker()
	cases := []struct {
		name string
		a, b map[string]any
	}{
		{"value", map[string]any{"val": 23}, map[string]any{"val": 26}},
		{"added", map[string]any{"val": 23}, map[string]any{"val": 23, "x": "y"}},
		{"removed", map[string]any{"val": 23, "x": "y"}, map[string]any{"val": 23}},
		{"nested", map[string]any{"o": map[string]any{"k": 1}}, map[string]any{"o": map[string]any{"k": 2}}},
		{"array", map[string]any{"l": []any{1, 2}}, map[string]any{"l": []any{2, 1}}},
	}
	for _, c := range cases {
		same, err := tr.Unchanged(c.a, c.b)
		if err != nil {
			t.Fatalf("%s: Unchanged failed, details: %v", c.name, err)
		}
		if same {
			t.Fatalf("%s: expected a change to be detected", c.name)
		}
	}
}

func TestDiff(t *testing.T) {
	tr := NewTracker()
	cs, err := tr.Diff(
		map[string]any{"_id": "doc_a", "_rev": "1-a", "val": 23, "gone": true},
		map[string]any{"_id": "doc_a", "_rev": "1-a", "val": 26, "new": "x"},
	)
	if err != nil {
		t.Fatalf("Diff failed, details: %v", err)
	}
	if cs.Empty() {
		t.Fatalf("expected non empty change set")
	}
	got := strings.Join(cs.Fields(), ",")
	if got != "gone,new,val" {
		t.Fatalf("got fields %q, expected %q", got, "gone,new,val")
	}
	text := cs.Text()
	if !strings.Contains(text, `-   "val": 23`) || !strings.Contains(text, `+   "val": 26`) {
		t.Fatalf("unexpected text diff:\n%s", text)
	}
}

func TestDiffOfEqualDocumentsIsEmpty(t *testing.T) {
	cs, err := NewTracker().Diff(map[string]any{"val": 1}, map[string]any{"val": 1})
	if err != nil {
		t.Fatalf("Diff failed, details: %v", err)
	}
	if !cs.Empty() || len(cs.Fields()) != 0 {
		t.Fatalf("expected empty change set, got %s", cs)
	}
}

func TestPatchApply(t *testing.T) {
	p, err := DecodePatch([]byte(`[{"op":"test","path":"/val","value":23},{"op":"replace","path":"/val","value":26}]`))
	if err != nil {
		t.Fatalf("DecodePatch failed, details: %v", err)
	}
	out, err := p.Apply(map[string]any{"_id": "doc_a", "val": 23})
	if err != nil {
		t.Fatalf("Apply failed, details: %v", err)
	}
	if out["val"] != float64(26) || out["_id"] != "doc_a" {
		t.Fatalf("unexpected patched document: %v", out)
	}
	if _, err := p.Apply(map[string]any{"val": 1}); err == nil {
		t.Fatalf("expected failing test op to error")
	}
}

func TestMergePatchRoundTrip(t *testing.T) {
	tr := NewTracker()
	from := map[string]any{"val": 23, "keep": "k"}
	to := map[string]any{"val": 26, "keep": "k"}
	cs, err := tr.Diff(from, to)
	if err != nil {
		t.Fatalf("Diff failed, details: %v", err)
	}
	out, err := MergePatch(from, cs.Patch)
	if err != nil {
		t.Fatalf("MergePatch failed, details: %v", err)
	}
	if same, _ := tr.Unchanged(out, to); !same {
		t.Fatalf("got %v, expected %v", out, to)
	}
}
