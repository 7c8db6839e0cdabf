// Package record implements a declarative codec for fixed-layout little-endian binary
// records.
//
// Every structure in a ZIP archive (local file header, central directory file header,
// ZIP64 end of central directory record, etc.) is a fixed sequence of 2-, 4-, and 8-byte
// little-endian integers. Declaring each structure once as an ordered list of named
// fields removes by-hand offset arithmetic and keeps field order and width in a single
// place.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFieldNotFound is returned by [Definition.Offset] and [Definition.Remaining] when
// the named field is not part of the definition. Hitting this error indicates a defect
// in the caller, not bad input data.
var ErrFieldNotFound = errors.New("field not found")

// DecodeError is returned by [Definition.Decode] when the buffer does not contain
// enough bytes for the full record.
type DecodeError struct {
	// Definition is the name of the record definition being decoded.
	Definition string
	// Need is the number of bytes the record requires past the decode offset.
	Need int
	// Have is the number of bytes that were actually available.
	Have int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: need %d bytes, have %d", e.Definition, e.Need, e.Have)
}

// Field declares one fixed-width integer field of a record.
type Field struct {
	// Name identifies the field within its definition. Names must be unique per
	// definition.
	Name string

	// Width is the field's size in bytes and must be 2, 4 or 8.
	Width int

	// Literal is the value encoded when the caller does not supply one, e.g. a magic
	// signature. The zero value doubles as the zero default.
	Literal uint64
}

// Definition is an ordered, fixed-layout record declaration.
//
// A Definition is immutable after Define returns and safe for concurrent use.
type Definition struct {
	name    string
	fields  []Field
	offsets []int
	size    int
	index   map[string]int
}

// Define builds a Definition from the given fields, in wire order.
//
// Define panics on a width other than 2, 4 or 8 and on duplicate field names; both are
// programmer errors in a record declaration, which is always a package-level constant.
func Define(name string, fields ...Field) *Definition {
	d := &Definition{
		name:    name,
		fields:  fields,
		offsets: make([]int, len(fields)),
		index:   make(map[string]int, len(fields)),
	}

	for i, f := range fields {
		switch f.Width {
		case 2, 4, 8:
		default:
			panic(fmt.Sprintf("record %s: field %s has invalid width %d", name, f.Name, f.Width))
		}

		if _, ok := d.index[f.Name]; ok {
			panic(fmt.Sprintf("record %s: duplicate field %s", name, f.Name))
		}

		d.index[f.Name] = i
		d.offsets[i] = d.size
		d.size += f.Width
	}

	return d
}

// Name returns the definition's name, used in error messages.
func (d *Definition) Name() string {
	return d.name
}

// Size returns the encoded size of the record in bytes. It is a pure function of the
// definition, independent of any value being encoded.
func (d *Definition) Size() int {
	return d.size
}

// Values maps field names to the values to encode, or decoded values to the caller.
// Fields absent from the map encode as their declared literal (or zero).
//
// All widths share uint64 storage so 64-bit ZIP64 quantities survive round trips above
// 2^53 without loss.
type Values map[string]uint64

// EncodeOptions customises [Definition.Encode].
type EncodeOptions struct {
	// PadBefore and PadAfter reserve that many zero bytes before and after the record
	// in the returned buffer. The record itself starts at offset PadBefore.
	PadBefore, PadAfter int
}

// WithPadding reserves before and after zero bytes around the encoded record.
func WithPadding(before, after int) func(*EncodeOptions) {
	return func(o *EncodeOptions) {
		o.PadBefore, o.PadAfter = before, after
	}
}

// Encode writes every field in declared order into a freshly allocated buffer and
// returns it along with the number of bytes written (padding included).
//
// A field missing from values encodes as its declared literal; a field that declares no
// literal encodes as zero.
func (d *Definition) Encode(values Values, optFns ...func(*EncodeOptions)) ([]byte, int) {
	opts := &EncodeOptions{}
	for _, fn := range optFns {
		fn(opts)
	}

	buf := make([]byte, opts.PadBefore+d.size+opts.PadAfter)
	for i, f := range d.fields {
		v, ok := values[f.Name]
		if !ok {
			v = f.Literal
		}

		putUint(buf[opts.PadBefore+d.offsets[i]:], f.Width, v)
	}

	return buf, len(buf)
}

// Decode reads every field in declared order starting at off and returns the decoded
// values along with the offset of the first unread byte.
//
// Returns a *DecodeError if buf is too short to hold the full record at off.
func (d *Definition) Decode(buf []byte, off int) (Values, int, error) {
	if len(buf)-off < d.size {
		return nil, off, &DecodeError{Definition: d.name, Need: d.size, Have: max(0, len(buf)-off)}
	}

	values := make(Values, len(d.fields))
	for i, f := range d.fields {
		values[f.Name] = getUint(buf[off+d.offsets[i]:], f.Width)
	}

	return values, off + d.size, nil
}

// Offset returns the byte offset of the named field within the record. If inclusive is
// true the field's own width is included, i.e. the returned value is the offset of the
// first byte after the field.
func (d *Definition) Offset(name string, inclusive bool) (int, error) {
	i, ok := d.index[name]
	if !ok {
		return 0, fmt.Errorf("record %s: %w: %q", d.name, ErrFieldNotFound, name)
	}

	if inclusive {
		return d.offsets[i] + d.fields[i].Width, nil
	}

	return d.offsets[i], nil
}

// Remaining returns the number of bytes from the named field to the end of the record.
// If inclusive is true the field's own width is counted.
func (d *Definition) Remaining(name string, inclusive bool) (int, error) {
	i, ok := d.index[name]
	if !ok {
		return 0, fmt.Errorf("record %s: %w: %q", d.name, ErrFieldNotFound, name)
	}

	if inclusive {
		return d.size - d.offsets[i], nil
	}

	return d.size - d.offsets[i] - d.fields[i].Width, nil
}

func putUint(b []byte, width int, v uint64) {
	switch width {
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func getUint(b []byte, width int) uint64 {
	switch width {
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}
