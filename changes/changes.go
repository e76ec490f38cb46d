// Package changes compares document snapshots and applies JSON patches.
package changes

import (
	"fmt"
	"sort"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sharedcode/doctxn/encoding"
)

// DefaultIgnored lists the bookkeeping fields left out of comparisons.
var DefaultIgnored = []string{"_id", "_rev"}

// Tracker compares documents field by field, skipping the Ignored fields.
type Tracker struct {
	Ignored []string
}

// NewTracker returns a Tracker ignoring DefaultIgnored.
func NewTracker() *Tracker {
	return &Tracker{Ignored: DefaultIgnored}
}

// ChangeSet describes the difference between two snapshots.
type ChangeSet struct {
	// Patch is the RFC 7386 merge patch turning the original into the current document.
	Patch []byte
	// Original and Current are the compared snapshots, bookkeeping fields removed.
	Original map[string]any
	Current  map[string]any
}

// Empty reports whether the change set holds no change.
func (cs ChangeSet) Empty() bool {
	return len(cs.Patch) == 0 || string(cs.Patch) == "{}"
}

// Fields returns the top level field names touched, sorted.
func (cs ChangeSet) Fields() []string {
	var m map[string]any
	if cs.Empty() || encoding.DefaultMarshaler.Unmarshal(cs.Patch, &m) != nil {
		return nil
	}
	fields := make([]string, 0, len(m))
	for k := range m {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func (cs ChangeSet) String() string {
	return string(cs.Patch)
}

// Text renders a line diff of the indented snapshots, "-" for removed lines and "+" for added.
func (cs ChangeSet) Text() string {
	from, err := encoding.Indent(cs.Original)
	if err != nil {
		return cs.String()
	}
	to, err := encoding.Indent(cs.Current)
	if err != nil {
		return cs.String()
	}
	dmp := diffpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(from), string(to))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffpatch.DiffInsert:
			prefix = "+ "
		case diffpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(line)
		}
	}
	return sb.String()
}

// Unchanged reports whether current holds the same fields and values as original.
func (t *Tracker) Unchanged(original, current map[string]any) (bool, error) {
	a, err := encoding.DefaultMarshaler.Marshal(t.strip(original))
	if err != nil {
		return false, fmt.Errorf("can't encode original document, details: %w", err)
	}
	b, err := encoding.DefaultMarshaler.Marshal(t.strip(current))
	if err != nil {
		return false, fmt.Errorf("can't encode current document, details: %w", err)
	}
	return jsonpatch.Equal(a, b), nil
}

// Diff computes the merge patch from original to current.
func (t *Tracker) Diff(original, current map[string]any) (ChangeSet, error) {
	o, c := t.strip(original), t.strip(current)
	a, err := encoding.DefaultMarshaler.Marshal(o)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("can't encode original document, details: %w", err)
	}
	b, err := encoding.DefaultMarshaler.Marshal(c)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("can't encode current document, details: %w", err)
	}
	patch, err := jsonpatch.CreateMergePatch(a, b)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("can't create merge patch, details: %w", err)
	}
	return ChangeSet{Patch: patch, Original: o, Current: c}, nil
}

// strip returns a shallow copy of doc without the ignored fields.
func (t *Tracker) strip(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for _, k := range t.Ignored {
		delete(out, k)
	}
	return out
}
