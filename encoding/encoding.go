// Package encoding holds the marshaler used to move documents to and from the wire.
package encoding

import (
	"bytes"
	"encoding/json"
)

// Marshaler interface specifies encoding to byte array and back to the object.
type Marshaler interface {
	// Encodes any object to byte array.
	Marshal(v any) ([]byte, error)
	// Decodes byte array back to its Object type.
	Unmarshal(data []byte, v any) error
}

// Global Default marshaler. Stores and the document cloner use it; replace it with
// your desired Marshaler implementation if needed. Defaults to use JSON Marshal.
var DefaultMarshaler = NewMarshaler()

type defaultMarshaler struct{}

// Returns the default marshaler which uses the golang's json package.
// Documents are JSON objects on every supported store so JSON is the natural default.
func NewMarshaler() Marshaler {
	return &defaultMarshaler{}
}

// Encodes any object to a byte array.
func (m defaultMarshaler) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decodes a byte array back to its Object type.
func (m defaultMarshaler) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Indent marshals v with DefaultMarshaler and re-indents the result with two spaces.
// Used where humans read documents (diffs, CLI output).
func Indent(v any) ([]byte, error) {
	ba, err := DefaultMarshaler.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, ba, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
