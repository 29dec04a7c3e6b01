package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFrameLayout(t *testing.T) {
	msg := NewInternalMessage("LU")
	require.NoError(t, msg.AddInt("type", 2))

	data, err := msg.Marshal()
	require.NoError(t, err)

	recordLen := msg.Content().Size()
	want := []byte{0x00, 0x00, 0x00, byte(recordLen), controlInternal, 0x00, 0x02, 'L', 'U'}
	assert.Equal(t, want, data[:len(want)])
	assert.Equal(t, msg.Content().Marshal(), data[len(want):])
}

func TestMessageReadWrite(t *testing.T) {
	tests := []struct {
		name     string
		internal bool
	}{
		{"application message", false},
		{"internal message", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg *Message
			if tt.internal {
				msg = NewInternalMessage("Ping")
			} else {
				msg = NewMessage("Ping")
			}
			require.NoError(t, msg.AddInt("seq", 1))
			require.NoError(t, msg.AddString("note", "hi"))

			var buf bytes.Buffer
			_, err := msg.WriteTo(&buf)
			require.NoError(t, err)

			got, err := ReadMessage(&buf)
			require.NoError(t, err)
			assert.Equal(t, "Ping", got.Name())
			assert.Equal(t, tt.internal, got.IsInternal())
			assert.True(t, got.ContainsField("seq"))
			assert.False(t, got.ContainsField("missing"))

			seq, err := got.GetInt("seq")
			require.NoError(t, err)
			assert.Equal(t, int32(1), seq)
			assert.Equal(t, msg.Fields(), got.Fields())
		})
	}
}

func TestReadMessageSequential(t *testing.T) {
	var buf bytes.Buffer
	for _, name := range []string{"a", "b", "c"} {
		_, err := NewMessage(name).WriteTo(&buf)
		require.NoError(t, err)
	}

	for _, name := range []string{"a", "b", "c"} {
		msg, err := ReadMessage(&buf)
		require.NoError(t, err)
		assert.Equal(t, name, msg.Name())
		assert.Equal(t, 0, msg.Len())
	}

	_, err := ReadMessage(&buf)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReadMessageMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"bad control flag", []byte{0x00, 0x00, 0x00, 0x04, 0x07, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"record shorter than its header", []byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"oversized record", []byte{0x7f, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00}},
		{"record length disagrees with frame", []byte{0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMessage(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecoding), "got %v", err)
		})
	}
}

func TestParseMessage(t *testing.T) {
	first := NewMessage("one")
	require.NoError(t, first.AddBool("ok", true))
	second := NewInternalMessage("two")

	a, err := first.Marshal()
	require.NoError(t, err)
	b, err := second.Marshal()
	require.NoError(t, err)
	stream := append(append([]byte{}, a...), b...)

	t.Run("incomplete", func(t *testing.T) {
		for _, cut := range []int{0, 3, frameHeaderSize, len(a) - 1} {
			_, n, err := ParseMessage(stream[:cut])
			assert.ErrorIs(t, err, ErrIncomplete, "cut at %d", cut)
			assert.Zero(t, n)
		}
	})

	t.Run("back to back", func(t *testing.T) {
		msg, n, err := ParseMessage(stream)
		require.NoError(t, err)
		assert.Equal(t, len(a), n)
		assert.Equal(t, "one", msg.Name())

		msg, n, err = ParseMessage(stream[n:])
		require.NoError(t, err)
		assert.Equal(t, len(b), n)
		assert.Equal(t, "two", msg.Name())
		assert.True(t, msg.IsInternal())
	})
}
