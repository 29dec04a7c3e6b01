package pubsub

import (
	"testing"

	"github.com/grouplab/inetwork/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateMatchesMessage(t *testing.T) {
	tmpl := NewTemplate("T", NewField("a", wire.Int))

	withA := wire.NewMessage("T")
	require.NoError(t, withA.AddInt("a", 5))
	assert.True(t, tmpl.Accepts(withA))

	withB := wire.NewMessage("T")
	require.NoError(t, withB.AddInt("b", 5))
	assert.False(t, tmpl.Accepts(withB))

	otherName := wire.NewMessage("U")
	require.NoError(t, otherName.AddInt("a", 5))
	assert.False(t, tmpl.Accepts(otherName))

	extra := wire.NewMessage("T")
	require.NoError(t, extra.AddInt("a", 5))
	require.NoError(t, extra.AddString("note", "x"))
	assert.True(t, tmpl.Accepts(extra))

	wrongType := wire.NewMessage("T")
	require.NoError(t, wrongType.AddLong("a", 5))
	assert.False(t, tmpl.Accepts(wrongType))
}

func TestFieldCompatibility(t *testing.T) {
	tests := []struct {
		a, b wire.TransferType
		want bool
	}{
		{wire.Int, wire.Int, true},
		{wire.Int, wire.Long, false},
		{wire.Null, wire.String, true},
		{wire.Null, wire.Binary, true},
		{wire.Null, wire.Null, true},
		{wire.Null, wire.Int, false},
		{wire.String, wire.Binary, false},
		{wire.Unknown, wire.Double, true},
		{wire.Unknown, wire.Null, true},
		{wire.Bool, wire.Byte, false},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+"/"+tt.b.String(), func(t *testing.T) {
			fa, fb := NewField("f", tt.a), NewField("f", tt.b)
			assert.Equal(t, tt.want, fa.Matches(fb))
			assert.Equal(t, tt.want, fb.Matches(fa), "compatibility must be symmetric")
		})
	}

	assert.False(t, NewField("f", wire.Int).Matches(NewField("g", wire.Int)))
	assert.False(t, NewField("", wire.Int).Matches(NewField("", wire.Int)))
}

func TestNullFieldMatchesNullableMessageField(t *testing.T) {
	tmpl := NewTemplate("status", NewField("detail", wire.Null))

	msg := wire.NewMessage("status")
	require.NoError(t, msg.AddString("detail", "all good"))
	assert.True(t, tmpl.Accepts(msg))

	msg = wire.NewMessage("status")
	require.NoError(t, msg.AddInt("detail", 1))
	assert.False(t, tmpl.Accepts(msg))
}

func TestTemplateAddRemoveField(t *testing.T) {
	tmpl := NewTemplate("T")
	assert.True(t, tmpl.AddField(NewField("a", wire.Int)))
	assert.False(t, tmpl.AddField(NewField("a", wire.Int)), "duplicates are ignored")
	assert.True(t, tmpl.AddField(NewField("b", wire.String)))
	assert.Len(t, tmpl.Fields(), 2)

	assert.True(t, tmpl.RemoveField(NewField("a", wire.Unknown)))
	assert.False(t, tmpl.RemoveField(NewField("a", wire.Int)))
	assert.Equal(t, []Field{{Name: "b", Type: wire.String}}, tmpl.Fields())
}

func TestTemplateOf(t *testing.T) {
	msg := wire.NewMessage("reading")
	require.NoError(t, msg.AddDouble("celsius", 21.5))
	require.NoError(t, msg.AddNull("unit"))

	tmpl := TemplateOf(msg)
	assert.Equal(t, "reading", tmpl.Name())
	assert.Equal(t, []Field{
		{Name: "celsius", Type: wire.Double},
		{Name: "unit", Type: wire.Null},
	}, tmpl.Fields())
}

func TestTemplateTravelsInMessage(t *testing.T) {
	tmpl := NewTemplate("T",
		NewField("a", wire.Int),
		NewField("b", wire.Unknown),
		NewField("c", wire.Null),
	)

	msg := wire.NewInternalMessage(RegisterTemplateName)
	require.NoError(t, msg.AddObject(TemplateFieldName, tmpl))
	data, err := msg.Marshal()
	require.NoError(t, err)

	decoded, _, err := wire.ParseMessage(data)
	require.NoError(t, err)
	got, err := templateFrom(decoded)
	require.NoError(t, err)

	assert.Equal(t, "T", got.Name())
	assert.Equal(t, tmpl.Fields(), got.Fields())
	assert.True(t, got.Matches(tmpl))
	assert.True(t, tmpl.Matches(got))

	rec, err := decoded.GetRecord(TemplateFieldName)
	require.NoError(t, err)
	num, err := rec.GetInt("num")
	require.NoError(t, err)
	assert.EqualValues(t, 3, num)
	assert.True(t, rec.Contains("0"))
	assert.True(t, rec.Contains("2"))
}

func TestTemplateFromRejectsOtherPayloads(t *testing.T) {
	msg := wire.NewInternalMessage(RegisterTemplateName)
	require.NoError(t, msg.AddString(TemplateFieldName, "not a template"))
	_, err := templateFrom(msg)
	assert.ErrorIs(t, err, wire.ErrDecoding)

	_, err = templateFrom(wire.NewInternalMessage(RegisterTemplateName))
	assert.ErrorIs(t, err, wire.ErrDecoding)
}

func TestTemplateString(t *testing.T) {
	tmpl := NewTemplate("T", NewField("a", wire.Int), NewField("b", wire.String))
	assert.Equal(t, "Template: 'T' { a [Int], b [String] }", tmpl.String())
}
