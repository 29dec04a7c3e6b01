package wire

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y int32
}

func (p *point) TransferID() string { return "test.point" }

func (p *point) WriteRecord(r *Record) error {
	if err := r.AddInt("x", p.X); err != nil {
		return err
	}
	return r.AddInt("y", p.Y)
}

func init() {
	Register("test.point", func(r *Record) (Transferable, error) {
		x, err := r.GetInt("x")
		if err != nil {
			return nil, err
		}
		y, err := r.GetInt("y")
		if err != nil {
			return nil, err
		}
		return &point{X: x, Y: y}, nil
	})
}

func fullRecord(t *testing.T) *Record {
	t.Helper()
	nested := NewRecord()
	require.NoError(t, nested.AddString("inner", "value"))

	r := NewRecord()
	require.NoError(t, r.AddBool("bool", true))
	require.NoError(t, r.AddByte("byte", 0x7f))
	require.NoError(t, r.AddDouble("double", math.Pi))
	require.NoError(t, r.AddFloat("float", 1.5))
	require.NoError(t, r.AddInt("int", -42))
	require.NoError(t, r.AddLong("long", math.MaxInt64))
	require.NoError(t, r.AddShort("short", -300))
	require.NoError(t, r.AddString("string", "héllo"))
	require.NoError(t, r.AddBinary("binary", []byte{0xde, 0xad, 0xbe, 0xef}))
	require.NoError(t, r.AddRecord("record", nested))
	require.NoError(t, r.AddObject("point", &point{X: 3, Y: 4}))
	require.NoError(t, r.AddNull("null"))
	return r
}

func TestRecordRoundTrip(t *testing.T) {
	original := fullRecord(t)
	data := original.Marshal()
	assert.Equal(t, original.Size(), len(data))

	decoded := NewRecord()
	n, err := decoded.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	assert.Equal(t, original.Fields(), decoded.Fields(), "field order and types must survive")

	b, err := decoded.GetBool("bool")
	require.NoError(t, err)
	assert.True(t, b)

	by, err := decoded.GetByte("byte")
	require.NoError(t, err)
	assert.Equal(t, byte(0x7f), by)

	d, err := decoded.GetDouble("double")
	require.NoError(t, err)
	assert.Equal(t, math.Pi, d)

	f, err := decoded.GetFloat("float")
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)

	i, err := decoded.GetInt("int")
	require.NoError(t, err)
	assert.Equal(t, int32(-42), i)

	l, err := decoded.GetLong("long")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), l)

	s, err := decoded.GetShort("short")
	require.NoError(t, err)
	assert.Equal(t, int16(-300), s)

	str, err := decoded.GetString("string")
	require.NoError(t, err)
	assert.Equal(t, "héllo", str)

	bin, err := decoded.GetBinary("binary")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, bin)

	nested, err := decoded.GetRecord("record")
	require.NoError(t, err)
	require.NotNil(t, nested)
	inner, err := nested.GetString("inner")
	require.NoError(t, err)
	assert.Equal(t, "value", inner)

	obj, err := decoded.GetObject("point", "test.point")
	require.NoError(t, err)
	assert.Equal(t, &point{X: 3, Y: 4}, obj)

	assert.True(t, decoded.IsNull("null"))
	v, err := decoded.GetValue("null")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRecordReserializeIsIdentical(t *testing.T) {
	first := fullRecord(t).Marshal()

	decoded := NewRecord()
	_, err := decoded.Unmarshal(first)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, decoded.Marshal()))
}

func TestRecordAddRejectsBadNames(t *testing.T) {
	r := NewRecord()
	require.NoError(t, r.AddInt("a", 1))
	before := r.Marshal()

	err := r.AddString("a", "dup")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncoding))
	assert.Equal(t, before, r.Marshal(), "record must be unchanged after a failed add")

	err = r.AddInt("", 2)
	assert.True(t, errors.Is(err, ErrEncoding))
	assert.Equal(t, 1, r.Len())
}

func TestRecordAddValueUnsupported(t *testing.T) {
	r := NewRecord()
	err := r.AddValue("u", uint64(7))
	require.Error(t, err)
	assert.Equal(t, KindEncoding, KindOf(err))
	assert.False(t, r.Contains("u"))

	err = r.AddValue("big", math.MaxInt32+1)
	assert.Equal(t, KindEncoding, KindOf(err))
}

func TestRecordGetErrors(t *testing.T) {
	r := NewRecord()
	require.NoError(t, r.AddInt("a", 5))

	tests := []struct {
		name string
		get  func() error
	}{
		{"missing field", func() error { _, err := r.GetInt("b"); return err }},
		{"empty name", func() error { _, err := r.GetInt(""); return err }},
		{"int as string", func() error { _, err := r.GetString("a"); return err }},
		{"int as long", func() error { _, err := r.GetLong("a"); return err }},
		{"no factory", func() error { _, err := r.GetObject("a", "nope"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.get()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecoding), "got %v", err)
		})
	}
}

func TestRecordNullAndFalse(t *testing.T) {
	r := NewRecord()
	require.NoError(t, r.AddBool("flag", false))
	require.NoError(t, r.AddString("empty", ""))
	require.NoError(t, r.AddBinary("nobytes", nil))
	require.NoError(t, r.AddNull("nothing"))

	decoded := NewRecord()
	_, err := decoded.Unmarshal(r.Marshal())
	require.NoError(t, err)

	flag, err := decoded.GetBool("flag")
	require.NoError(t, err)
	assert.False(t, flag)
	assert.False(t, decoded.IsNull("flag"), "false is not null for Bool")

	s, err := decoded.GetString("empty")
	require.NoError(t, err)
	assert.Equal(t, "", s)
	assert.True(t, decoded.IsNull("empty"))

	b, err := decoded.GetBinary("nobytes")
	require.NoError(t, err)
	assert.Nil(t, b)

	// A Null field reads as the zero value of whatever is asked for
	n, err := decoded.GetInt("nothing")
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)
	rec, err := decoded.GetRecord("nothing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecordSingleZeroByteReadsAsNull(t *testing.T) {
	r := NewRecord()
	require.NoError(t, r.AddByte("zero", 0))
	require.NoError(t, r.AddBinary("nul", []byte{0}))
	require.NoError(t, r.AddString("nulchar", "\x00"))
	require.NoError(t, r.AddBinary("two", []byte{0, 0}))

	decoded := NewRecord()
	_, err := decoded.Unmarshal(r.Marshal())
	require.NoError(t, err)

	// a one-byte payload of zero is the null marker whatever the type
	for _, name := range []string{"zero", "nul", "nulchar"} {
		assert.True(t, decoded.IsNull(name), name)
	}
	assert.False(t, decoded.IsNull("two"))

	b, err := decoded.GetByte("zero")
	require.NoError(t, err)
	assert.Equal(t, byte(0), b)

	bin, err := decoded.GetBinary("nul")
	require.NoError(t, err)
	assert.Nil(t, bin)

	s, err := decoded.GetString("nulchar")
	require.NoError(t, err)
	assert.Equal(t, "", s)

	bin, err = decoded.GetBinary("two")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, bin)
}

func TestRecordWireLayout(t *testing.T) {
	r := NewRecord()
	require.NoError(t, r.AddInt("a", 1))

	want := []byte{
		0x00, 0x00, 0x00, 0x0c, // total length
		0x00, 0x01, 'a', // name
		byte(Int),
		0x00, 0x00, 0x00, 0x04, // value length
		0x01, 0x00, 0x00, 0x00, // little-endian 1
	}
	assert.Equal(t, want, r.Marshal())
}

func TestRecordUnmarshalMalformed(t *testing.T) {
	good := fullRecord(t).Marshal()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{0x00, 0x00}},
		{"truncated body", good[:len(good)-3]},
		{"declared length too large", []byte{0x00, 0x00, 0x01, 0x00, 0x00}},
		{"bad type tag", []byte{
			0x00, 0x00, 0x00, 0x09,
			0x00, 0x01, 'a', 0x2a,
			0x00, 0x00, 0x00, 0x01, 0x00,
		}},
		{"duplicate name", []byte{
			0x00, 0x00, 0x00, 0x12,
			0x00, 0x01, 'a', byte(Bool), 0x00, 0x00, 0x00, 0x01, 0x01,
			0x00, 0x01, 'a', byte(Bool), 0x00, 0x00, 0x00, 0x01, 0x01,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecord().Unmarshal(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecoding), "got %v", err)
		})
	}
}

func TestEncodeValueTypes(t *testing.T) {
	tests := []struct {
		value any
		want  TransferType
	}{
		{nil, Null},
		{true, Bool},
		{byte(1), Byte},
		{1.0, Double},
		{float32(1), Float},
		{int32(1), Int},
		{1, Int},
		{int64(1), Long},
		{int16(1), Short},
		{"s", String},
		{[]byte{1}, Binary},
		{NewRecord(), Object},
		{&point{}, Object},
	}
	for _, tt := range tests {
		got, _, err := EncodeValue(tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "EncodeValue(%T)", tt.value)
		assert.Equal(t, tt.want, TypeOf(tt.value), "TypeOf(%T)", tt.value)
	}
}
