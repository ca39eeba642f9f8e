// Package document provides the ordered, typed field map a row is projected
// into, and its JSON encoding for indexing backends.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Field is one named value of a Document.
//
// Value holds one of: string, bool, int16, int32, int64, uint32, float32,
// float64, json.RawMessage, or a slice of pointers to one of those types
// ([]*string, []*int32, ...) where a nil element is a NULL array element.
type Field struct {
	Name  string
	Value any
}

// Document is an ordered mapping from attribute name to encoded value.
// Fields for NULL values are never added; absence is the NULL encoding.
type Document struct {
	fields []Field
	index  map[string]int
}

// New creates an empty Document sized for n fields.
func New(n int) *Document {
	return &Document{
		fields: make([]Field, 0, n),
		index:  make(map[string]int, n),
	}
}

// add appends or replaces a field, keeping first-insertion order.
func (d *Document) add(name string, v any) {
	if i, ok := d.index[name]; ok {
		d.fields[i].Value = v
		return
	}
	d.index[name] = len(d.fields)
	d.fields = append(d.fields, Field{Name: name, Value: v})
}

func (d *Document) AddString(name, v string) { d.add(name, v) }

func (d *Document) AddBool(name string, v bool) { d.add(name, v) }

func (d *Document) AddInt16(name string, v int16) { d.add(name, v) }

func (d *Document) AddInt32(name string, v int32) { d.add(name, v) }

func (d *Document) AddInt64(name string, v int64) { d.add(name, v) }

func (d *Document) AddUint32(name string, v uint32) { d.add(name, v) }

func (d *Document) AddFloat32(name string, v float32) { d.add(name, v) }

func (d *Document) AddFloat64(name string, v float64) { d.add(name, v) }

// AddJSON adds a raw JSON value. The caller guarantees v is valid JSON.
func (d *Document) AddJSON(name string, v json.RawMessage) { d.add(name, v) }

// Element is the set of array element types a Document can hold.
type Element interface {
	string | bool | int16 | int32 | int64 | uint32 | float32 | float64 | json.RawMessage
}

// AddArray adds an array field. nil elements are NULL array elements.
func AddArray[T Element](d *Document, name string, v []*T) {
	if v == nil {
		v = []*T{}
	}
	d.add(name, v)
}

// Len returns the number of fields.
func (d *Document) Len() int { return len(d.fields) }

// Fields returns the fields in insertion order.
func (d *Document) Fields() []Field { return d.fields }

// Get returns the value of a field and whether it is present.
func (d *Document) Get(name string) (any, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.fields[i].Value, true
}

// Has reports whether the document carries a field.
func (d *Document) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Names returns the field names in order.
func (d *Document) Names() []string {
	names := make([]string, len(d.fields))
	for i, f := range d.fields {
		names[i] = f.Name
	}
	return names
}

// MarshalJSON encodes the document as a single-line JSON object with fields
// in insertion order. Non-finite floats encode as the strings "NaN",
// "Infinity" and "-Infinity" since JSON has no literal for them.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(32 * len(d.fields))
	buf.WriteByte('{')
	for i, f := range d.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := encodeValue(&buf, f.Value); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case string:
		return encodeJSON(buf, x)
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case float32:
		encodeFloat(buf, float64(x), 32)
	case float64:
		encodeFloat(buf, x, 64)
	case json.RawMessage:
		// Compact so the body stays on one line for NDJSON transports.
		if err := json.Compact(buf, x); err != nil {
			return err
		}
	case []*string:
		return encodeArray(buf, x)
	case []*bool:
		return encodeArray(buf, x)
	case []*int16:
		return encodeArray(buf, x)
	case []*int32:
		return encodeArray(buf, x)
	case []*int64:
		return encodeArray(buf, x)
	case []*uint32:
		return encodeArray(buf, x)
	case []*float32:
		return encodeArray(buf, x)
	case []*float64:
		return encodeArray(buf, x)
	case []*json.RawMessage:
		return encodeArray(buf, x)
	default:
		return fmt.Errorf("unsupported field value %T", v)
	}
	return nil
}

func encodeArray[T Element](buf *bytes.Buffer, elems []*T) error {
	buf.WriteByte('[')
	for i, e := range elems {
		if i > 0 {
			buf.WriteByte(',')
		}
		if e == nil {
			buf.WriteString("null")
			continue
		}
		if err := encodeValue(buf, any(*e)); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeFloat(buf *bytes.Buffer, f float64, bits int) {
	switch {
	case math.IsNaN(f):
		buf.WriteString(`"NaN"`)
	case math.IsInf(f, 1):
		buf.WriteString(`"Infinity"`)
	case math.IsInf(f, -1):
		buf.WriteString(`"-Infinity"`)
	default:
		b, _ := json.Marshal(floatOf(f, bits))
		buf.Write(b)
	}
}

// floatOf keeps float32 values at 32-bit precision so 0.1f encodes as 0.1.
func floatOf(f float64, bits int) any {
	if bits == 32 {
		return float32(f)
	}
	return f
}

func encodeJSON(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
