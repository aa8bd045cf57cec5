// Package jsondoc holds a JSON object as an ordered list of members whose
// values stay in their original encoded form until they are replaced.
//
// Only the top level is decoded. Nested objects and arrays are carried
// through verbatim, so a round trip through Parse and Marshal leaves every
// member that was not touched byte-for-byte intact.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotObject is returned when the input is valid JSON but not an object.
var ErrNotObject = errors.New("jsondoc: document is not a JSON object")

// Document is an ordered mapping from member name to encoded value.
type Document struct {
	keys   []string
	values map[string]json.RawMessage
}

// New returns an empty document.
func New() *Document {
	return &Document{values: make(map[string]json.RawMessage)}
}

// Parse decodes the top level of a JSON object.
func Parse(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("jsondoc: parse: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	doc := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("jsondoc: parse key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("jsondoc: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("jsondoc: parse value of %q: %w", key, err)
		}
		doc.put(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("jsondoc: parse: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("jsondoc: trailing data after object")
	}
	return doc, nil
}

// ParseString is Parse for string input.
func ParseString(s string) (*Document, error) {
	return Parse([]byte(s))
}

// Len reports the number of members.
func (d *Document) Len() int {
	return len(d.keys)
}

// Keys returns member names in document order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Has reports whether the member exists, including when its value is null.
func (d *Document) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Raw returns the encoded value of a member.
func (d *Document) Raw(key string) (json.RawMessage, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Get decodes the member into dst. It reports false when the member is absent.
func (d *Document) Get(key string, dst any) (bool, error) {
	raw, ok := d.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("jsondoc: decode %q: %w", key, err)
	}
	return true, nil
}

// Set overwrites the member in place, or appends it when absent.
func (d *Document) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("jsondoc: encode %q: %w", key, err)
	}
	d.put(key, raw)
	return nil
}

// SetNull writes an explicit JSON null, appending the member when absent.
func (d *Document) SetNull(key string) {
	d.put(key, json.RawMessage("null"))
}

// SetIfAbsent adds the member only when it does not exist yet.
func (d *Document) SetIfAbsent(key string, value any) (bool, error) {
	if d.Has(key) {
		return false, nil
	}
	return true, d.Set(key, value)
}

// Delete removes the member, keeping the order of the rest.
func (d *Document) Delete(key string) bool {
	if _, ok := d.values[key]; !ok {
		return false
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

func (d *Document) put(key string, raw json.RawMessage) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = raw
}

// MarshalJSON writes members in document order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(d.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the document, or "" if it cannot be encoded.
func (d *Document) String() string {
	b, err := d.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}
