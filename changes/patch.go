package changes

import (
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/sharedcode/doctxn/encoding"
)

// Patch is a decoded RFC 6902 JSON Patch.
type Patch struct {
	ops jsonpatch.Patch
}

// DecodePatch parses an RFC 6902 JSON Patch document.
func DecodePatch(patchJSON []byte) (*Patch, error) {
	ops, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, fmt.Errorf("can't decode json patch, details: %w", err)
	}
	return &Patch{ops: ops}, nil
}

// Apply returns a new document with the patch applied to doc. A failing "test"
// operation or a missing path yields an error.
func (p *Patch) Apply(doc map[string]any) (map[string]any, error) {
	ba, err := encoding.DefaultMarshaler.Marshal(doc)
	if err != nil {
		return nil, err
	}
	out, err := p.ops.Apply(ba)
	if err != nil {
		return nil, fmt.Errorf("can't apply json patch, details: %w", err)
	}
	var result map[string]any
	if err := encoding.DefaultMarshaler.Unmarshal(out, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// MergePatch applies an RFC 7386 merge patch, e.g. one produced by Tracker.Diff.
func MergePatch(doc map[string]any, patch []byte) (map[string]any, error) {
	ba, err := encoding.DefaultMarshaler.Marshal(doc)
	if err != nil {
		return nil, err
	}
	out, err := jsonpatch.MergePatch(ba, patch)
	if err != nil {
		return nil, fmt.Errorf("can't apply merge patch, details: %w", err)
	}
	var result map[string]any
	if err := encoding.DefaultMarshaler.Unmarshal(out, &result); err != nil {
		return nil, err
	}
	return result, nil
}
