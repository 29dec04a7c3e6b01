package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Record layout:
//
//	[4-byte BE total length]
//	repeated: [2-byte BE name length][name][1-byte type tag][4-byte BE value length][value]
const (
	recordLengthSize = 4
	entryHeaderSize  = 2 + 1 + 4
	maxNameLength    = math.MaxUint16
)

type entry struct {
	desc Descriptor
	data []byte
}

// Record is an ordered set of uniquely named, typed fields. Fields keep
// insertion order through serialization and back.
//
// A Record is not safe for concurrent mutation.
type Record struct {
	entries []entry
	index   map[string]int
}

// NewRecord creates an empty record
func NewRecord() *Record {
	return &Record{index: make(map[string]int)}
}

// Len returns the number of fields
func (r *Record) Len() int {
	return len(r.entries)
}

// Fields returns the field descriptors in insertion order
func (r *Record) Fields() []Descriptor {
	out := make([]Descriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.desc
	}
	return out
}

// Contains reports whether a field with the given name exists. Only the
// name is compared.
func (r *Record) Contains(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Descriptor returns the descriptor stored under name
func (r *Record) Descriptor(name string) (Descriptor, bool) {
	i, ok := r.index[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.entries[i].desc, true
}

// IsNull reports whether the named field holds the null marker: a field
// declared Null, or any non-Bool field whose payload is the single zero byte.
func (r *Record) IsNull(name string) bool {
	i, ok := r.index[name]
	if !ok {
		return false
	}
	e := r.entries[i]
	return e.desc.Type == Null || (e.desc.Type != Bool && isNull(e.data))
}

// AddValue encodes value and appends it under name. Supported Go types are
// nil, bool, uint8, float64, float32, int32, int, int64, int16, string,
// []byte, *Record and Transferable.
func (r *Record) AddValue(name string, value any) error {
	if err := r.checkName("AddValue", name); err != nil {
		return err
	}

	t, data, err := EncodeValue(value)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.Op = "AddValue"
			e.Name = name
		}
		return err
	}

	r.add(Descriptor{Name: name, Type: t}, data)
	return nil
}

func (r *Record) checkName(op, name string) error {
	if name == "" {
		return EncodingError(op, name, "field names must contain at least one character")
	}
	if len(name) > maxNameLength {
		return EncodingError(op, name[:16]+"...", fmt.Sprintf("field name exceeds %d bytes", maxNameLength))
	}
	if r.Contains(name) {
		return EncodingError(op, name, "field name already exists, names must be unique")
	}
	return nil
}

func (r *Record) add(desc Descriptor, data []byte) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	r.index[desc.Name] = len(r.entries)
	r.entries = append(r.entries, entry{desc: desc, data: data})
}

func (r *Record) AddBool(name string, v bool) error { return r.AddValue(name, v) }
func (r *Record) AddByte(name string, v byte) error { return r.AddValue(name, v) }
func (r *Record) AddDouble(name string, v float64) error { return r.AddValue(name, v) }
func (r *Record) AddFloat(name string, v float32) error { return r.AddValue(name, v) }
func (r *Record) AddInt(name string, v int32) error { return r.AddValue(name, v) }
func (r *Record) AddLong(name string, v int64) error { return r.AddValue(name, v) }
func (r *Record) AddShort(name string, v int16) error { return r.AddValue(name, v) }
func (r *Record) AddString(name string, v string) error { return r.AddValue(name, v) }
func (r *Record) AddBinary(name string, v []byte) error { return r.AddValue(name, v) }
func (r *Record) AddRecord(name string, v *Record) error { return r.AddValue(name, v) }
func (r *Record) AddNull(name string) error { return r.AddValue(name, nil) }
func (r *Record) AddObject(name string, v Transferable) error {
	if v == nil {
		return r.AddNull(name)
	}
	return r.AddValue(name, v)
}

// lookup returns the payload for name. null is true when the field carries
// the null marker; the special case never applies to Bool reads because
// false shares the same byte.
func (r *Record) lookup(op, name string, want TransferType) (data []byte, null bool, err error) {
	if name == "" {
		return nil, false, DecodingError(op, name, "field names must contain at least one character")
	}
	i, ok := r.index[name]
	if !ok {
		return nil, false, DecodingError(op, name, "field does not exist")
	}

	e := r.entries[i]
	if e.desc.Type == Null {
		return nil, true, nil
	}
	if want != Bool && isNull(e.data) {
		return nil, true, nil
	}
	if e.desc.Type != want && e.desc.Type != Unknown {
		return nil, false, DecodingError(op, name, fmt.Sprintf("field is %s, cannot read as %s", e.desc.Type, want))
	}
	if w := want.width(); w > 0 && len(e.data) < w {
		return nil, false, DecodingError(op, name, fmt.Sprintf("%s needs %d bytes, got %d", want, w, len(e.data)))
	}
	return e.data, false, nil
}

// GetBool reads a Bool field; a Null field reads as false
func (r *Record) GetBool(name string) (bool, error) {
	data, null, err := r.lookup("GetBool", name, Bool)
	if err != nil || null {
		return false, err
	}
	return data[0] != 0, nil
}

// GetByte reads a Byte field
func (r *Record) GetByte(name string) (byte, error) {
	data, null, err := r.lookup("GetByte", name, Byte)
	if err != nil || null {
		return 0, err
	}
	return data[0], nil
}

// GetDouble reads a Double field
func (r *Record) GetDouble(name string) (float64, error) {
	data, null, err := r.lookup("GetDouble", name, Double)
	if err != nil || null {
		return 0, err
	}
	return math.Float64frombits(scalarOrder.Uint64(data)), nil
}

// GetFloat reads a Float field
func (r *Record) GetFloat(name string) (float32, error) {
	data, null, err := r.lookup("GetFloat", name, Float)
	if err != nil || null {
		return 0, err
	}
	return math.Float32frombits(scalarOrder.Uint32(data)), nil
}

// GetInt reads an Int field
func (r *Record) GetInt(name string) (int32, error) {
	data, null, err := r.lookup("GetInt", name, Int)
	if err != nil || null {
		return 0, err
	}
	return int32(scalarOrder.Uint32(data)), nil
}

// GetLong reads a Long field
func (r *Record) GetLong(name string) (int64, error) {
	data, null, err := r.lookup("GetLong", name, Long)
	if err != nil || null {
		return 0, err
	}
	return int64(scalarOrder.Uint64(data)), nil
}

// GetShort reads a Short field
func (r *Record) GetShort(name string) (int16, error) {
	data, null, err := r.lookup("GetShort", name, Short)
	if err != nil || null {
		return 0, err
	}
	return int16(scalarOrder.Uint16(data)), nil
}

// GetString reads a String field; null reads as ""
func (r *Record) GetString(name string) (string, error) {
	data, null, err := r.lookup("GetString", name, String)
	if err != nil || null {
		return "", err
	}
	return string(data), nil
}

// GetBinary reads a Binary field; null reads as nil
func (r *Record) GetBinary(name string) ([]byte, error) {
	data, null, err := r.lookup("GetBinary", name, Binary)
	if err != nil || null {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// GetRecord reads an Object field as its nested record; null reads as nil
func (r *Record) GetRecord(name string) (*Record, error) {
	data, null, err := r.lookup("GetRecord", name, Object)
	if err != nil || null {
		return nil, err
	}
	nested := NewRecord()
	if _, err := nested.Unmarshal(data); err != nil {
		return nil, err
	}
	return nested, nil
}

// GetObject reads an Object field and rebuilds it with the factory
// registered under id. Null reads as nil.
func (r *Record) GetObject(name, id string) (Transferable, error) {
	f, ok := factoryFor(id)
	if !ok {
		return nil, DecodingError("GetObject", name, fmt.Sprintf("no factory registered for %q", id))
	}
	nested, err := r.GetRecord(name)
	if err != nil || nested == nil {
		return nil, err
	}
	v, err := f(nested)
	if err != nil {
		return nil, &Error{Kind: KindDecoding, Op: "GetObject", Name: name,
			Message: fmt.Sprintf("factory %q failed", id), Err: err}
	}
	return v, nil
}

// GetValue decodes the named field according to its own descriptor type.
func (r *Record) GetValue(name string) (any, error) {
	if name == "" {
		return nil, DecodingError("GetValue", name, "field names must contain at least one character")
	}
	i, ok := r.index[name]
	if !ok {
		return nil, DecodingError("GetValue", name, "field does not exist")
	}
	e := r.entries[i]
	v, err := DecodeValue(e.desc.Type, e.data)
	if err != nil {
		if de, ok := err.(*Error); ok {
			de.Op = "GetValue"
			de.Name = name
		}
		return nil, err
	}
	return v, nil
}

// Size returns the number of bytes Marshal produces
func (r *Record) Size() int {
	n := recordLengthSize
	for _, e := range r.entries {
		n += entryHeaderSize + len(e.desc.Name) + len(e.data)
	}
	return n
}

// Marshal serializes the record
func (r *Record) Marshal() []byte {
	return r.AppendTo(make([]byte, 0, r.Size()))
}

// AppendTo appends the serialized record to dst
func (r *Record) AppendTo(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(r.Size()-recordLengthSize))
	for _, e := range r.entries {
		dst = binary.BigEndian.AppendUint16(dst, uint16(len(e.desc.Name)))
		dst = append(dst, e.desc.Name...)
		dst = append(dst, byte(e.desc.Type))
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(e.data)))
		dst = append(dst, e.data...)
	}
	return dst
}

// Unmarshal replaces the contents of r with the record encoded at the start
// of data and returns the number of bytes consumed.
func (r *Record) Unmarshal(data []byte) (int, error) {
	r.entries = nil
	r.index = make(map[string]int)

	if len(data) < recordLengthSize {
		return 0, DecodingError("Unmarshal", "", fmt.Sprintf("record header needs %d bytes, got %d", recordLengthSize, len(data)))
	}
	total := int(binary.BigEndian.Uint32(data))
	end := recordLengthSize + total
	if total < 0 || end > len(data) {
		return 0, DecodingError("Unmarshal", "", fmt.Sprintf("record declares %d bytes, only %d available", total, len(data)-recordLengthSize))
	}

	off := recordLengthSize
	for off < end {
		if end-off < 2 {
			return 0, DecodingError("Unmarshal", "", "truncated field name length")
		}
		nameLen := int(binary.BigEndian.Uint16(data[off:]))
		off += 2
		if end-off < nameLen+1+4 {
			return 0, DecodingError("Unmarshal", "", "truncated field header")
		}
		name := string(data[off : off+nameLen])
		off += nameLen
		t := TransferType(data[off])
		off++
		valueLen := int(binary.BigEndian.Uint32(data[off:]))
		off += 4
		if valueLen < 0 || end-off < valueLen {
			return 0, DecodingError("Unmarshal", name, fmt.Sprintf("value declares %d bytes, only %d available", valueLen, end-off))
		}
		if !t.Valid() {
			return 0, DecodingError("Unmarshal", name, fmt.Sprintf("invalid type tag %d", byte(t)))
		}
		if name == "" || r.Contains(name) {
			return 0, DecodingError("Unmarshal", name, "empty or duplicate field name")
		}

		value := make([]byte, valueLen)
		copy(value, data[off:off+valueLen])
		off += valueLen

		r.add(Descriptor{Name: name, Type: t}, value)
	}

	return end, nil
}

// String returns a debug representation of the record
func (r *Record) String() string {
	parts := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		v, err := DecodeValue(e.desc.Type, e.data)
		switch {
		case err != nil:
			parts = append(parts, fmt.Sprintf("%s=<%v>", e.desc, err))
		case e.desc.Type == Binary:
			parts = append(parts, fmt.Sprintf("%s=%d bytes", e.desc, len(e.data)))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", e.desc, v))
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
