package encoding

import (
	"strings"
	"testing"
)

func TestDefaultMarshalerRoundTrip(t *testing.T) {
	var out map[string]any
	ba, err := DefaultMarshaler.Marshal(map[string]any{"_id": "doc_a", "val": 23})
	if err != nil {
		t.Fatalf("Marshal failed, details: %v", err)
	}
	if err := DefaultMarshaler.Unmarshal(ba, &out); err != nil {
		t.Fatalf("Unmarshal failed, details: %v", err)
	}
	if out["val"] != float64(23) {
		t.Fatalf("got %v, expected 23", out["val"])
	}
}

func TestIndent(t *testing.T) {
	ba, err := Indent(map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("Indent failed, details: %v", err)
	}
	if !strings.Contains(string(ba), "\n  \"a\": 1") {
		t.Fatalf("unexpected indentation: %q", string(ba))
	}
}
