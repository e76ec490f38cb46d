package doctxn

import (
	"fmt"
	"time"

	"github.com/sharedcode/doctxn/encoding"
)

// Bookkeeping field names carried by every stored document.
const (
	FieldID        = "_id"
	FieldRev       = "_rev"
	FieldUpdatedAt = "updated_at"
)

// Now is the clock used for update timestamps. Tests may replace it.
var Now = time.Now

// Document is a JSON object keyed by field name.
type Document map[string]any

// ID returns the document identity or "" when missing.
func (d Document) ID() string {
	return d.stringField(FieldID)
}

// Rev returns the revision token or "" when missing.
func (d Document) Rev() string {
	return d.stringField(FieldRev)
}

func (d Document) stringField(name string) string {
	if d == nil {
		return ""
	}
	s, _ := d[name].(string)
	return s
}

// Clone returns a deep copy made through the default marshaler, so nested values
// come back in their JSON shape (numbers as float64, objects as map[string]any).
func (d Document) Clone() (Document, error) {
	if d == nil {
		return nil, nil
	}
	ba, err := encoding.DefaultMarshaler.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("can't clone document %q, details: %w", d.ID(), err)
	}
	var c Document
	if err := encoding.DefaultMarshaler.Unmarshal(ba, &c); err != nil {
		return nil, fmt.Errorf("can't clone document %q, details: %w", d.ID(), err)
	}
	return c, nil
}

// String renders the document as JSON, used for log messages.
func (d Document) String() string {
	ba, err := encoding.DefaultMarshaler.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(d))
	}
	return string(ba)
}

func stamp(d Document) {
	d[FieldUpdatedAt] = Now().UTC().Format(time.RFC3339Nano)
}
