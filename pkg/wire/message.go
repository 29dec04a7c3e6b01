package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame header:
//
//	[4-byte BE record length][1-byte control flag][2-byte BE name length][name]
//
// followed by exactly record-length bytes of serialized Record.
const (
	frameLengthSize = 4
	frameHeaderSize = frameLengthSize + 1 + 2

	controlApplication byte = 0
	controlInternal    byte = 1
)

// MaxRecordSize bounds the record length a frame may declare. Larger frames
// are rejected before any allocation.
const MaxRecordSize = 64 << 20

// Message is a named envelope around one Record. Internal messages carry
// protocol traffic (discovery, template registration) and are routed apart
// from application messages.
type Message struct {
	name     string
	internal bool
	content  *Record
}

// NewMessage creates an application message
func NewMessage(name string) *Message {
	return &Message{name: name, content: NewRecord()}
}

// NewInternalMessage creates a control message
func NewInternalMessage(name string) *Message {
	return &Message{name: name, internal: true, content: NewRecord()}
}

func (m *Message) Name() string { return m.name }
func (m *Message) IsInternal() bool { return m.internal }
func (m *Message) Content() *Record { return m.content }
func (m *Message) Len() int { return m.content.Len() }
func (m *Message) Fields() []Descriptor {
	return m.content.Fields()
}

// ContainsField reports whether a field with this name exists; the type
// is not compared.
func (m *Message) ContainsField(name string) bool {
	return m.content.Contains(name)
}

func (m *Message) IsNull(name string) bool { return m.content.IsNull(name) }

func (m *Message) AddValue(name string, v any) error { return m.content.AddValue(name, v) }
func (m *Message) AddBool(name string, v bool) error { return m.content.AddBool(name, v) }
func (m *Message) AddByte(name string, v byte) error { return m.content.AddByte(name, v) }
func (m *Message) AddDouble(name string, v float64) error { return m.content.AddDouble(name, v) }
func (m *Message) AddFloat(name string, v float32) error { return m.content.AddFloat(name, v) }
func (m *Message) AddInt(name string, v int32) error { return m.content.AddInt(name, v) }
func (m *Message) AddLong(name string, v int64) error { return m.content.AddLong(name, v) }
func (m *Message) AddShort(name string, v int16) error { return m.content.AddShort(name, v) }
func (m *Message) AddString(name string, v string) error { return m.content.AddString(name, v) }
func (m *Message) AddBinary(name string, v []byte) error { return m.content.AddBinary(name, v) }
func (m *Message) AddRecord(name string, v *Record) error { return m.content.AddRecord(name, v) }
func (m *Message) AddObject(name string, v Transferable) error { return m.content.AddObject(name, v) }
func (m *Message) AddNull(name string) error { return m.content.AddNull(name) }

func (m *Message) GetValue(name string) (any, error) { return m.content.GetValue(name) }
func (m *Message) GetBool(name string) (bool, error) { return m.content.GetBool(name) }
func (m *Message) GetByte(name string) (byte, error) { return m.content.GetByte(name) }
func (m *Message) GetDouble(name string) (float64, error) { return m.content.GetDouble(name) }
func (m *Message) GetFloat(name string) (float32, error) { return m.content.GetFloat(name) }
func (m *Message) GetInt(name string) (int32, error) { return m.content.GetInt(name) }
func (m *Message) GetLong(name string) (int64, error) { return m.content.GetLong(name) }
func (m *Message) GetShort(name string) (int16, error) { return m.content.GetShort(name) }
func (m *Message) GetString(name string) (string, error) { return m.content.GetString(name) }
func (m *Message) GetBinary(name string) ([]byte, error) { return m.content.GetBinary(name) }
func (m *Message) GetRecord(name string) (*Record, error) { return m.content.GetRecord(name) }
func (m *Message) GetObject(name, id string) (Transferable, error) {
	return m.content.GetObject(name, id)
}

// Marshal serializes the message into a single frame
func (m *Message) Marshal() ([]byte, error) {
	if len(m.name) > maxNameLength {
		return nil, EncodingError("Marshal", m.name[:16]+"...", "message name too long")
	}
	size := m.content.Size()
	if size > MaxRecordSize {
		return nil, EncodingError("Marshal", m.name, fmt.Sprintf("record of %d bytes exceeds %d", size, MaxRecordSize))
	}

	buf := make([]byte, 0, frameHeaderSize+len(m.name)+size)
	buf = binary.BigEndian.AppendUint32(buf, uint32(size))
	if m.internal {
		buf = append(buf, controlInternal)
	} else {
		buf = append(buf, controlApplication)
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.name)))
	buf = append(buf, m.name...)
	return m.content.AppendTo(buf), nil
}

// WriteTo writes the framed message to w in a single Write call
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	buf, err := m.Marshal()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	return int64(n), err
}

// String returns a debug representation of the message
func (m *Message) String() string {
	kind := "app"
	if m.internal {
		kind = "internal"
	}
	return fmt.Sprintf("Message{%s, %s, %s}", m.name, kind, m.content)
}

// ReadMessage reads exactly one framed message from r. I/O errors are
// returned wrapped; a malformed frame yields a DecodingError.
func ReadMessage(r io.Reader) (*Message, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	size, internal, nameLen, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	body := make([]byte, nameLen+size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}

	return decodeBody(body[:nameLen], body[nameLen:], internal)
}

// ParseMessage decodes the frame at the start of buf and returns the number
// of bytes it occupied. ErrIncomplete means buf holds only part of a frame.
func ParseMessage(buf []byte) (*Message, int, error) {
	if len(buf) < frameHeaderSize {
		return nil, 0, ErrIncomplete
	}
	size, internal, nameLen, err := parseHeader(buf[:frameHeaderSize])
	if err != nil {
		return nil, 0, err
	}
	total := frameHeaderSize + nameLen + size
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}

	nameEnd := frameHeaderSize + nameLen
	msg, err := decodeBody(buf[frameHeaderSize:nameEnd], buf[nameEnd:total], internal)
	if err != nil {
		return nil, 0, err
	}
	return msg, total, nil
}

func parseHeader(header []byte) (size int, internal bool, nameLen int, err error) {
	size = int(binary.BigEndian.Uint32(header))
	if size < recordLengthSize || size > MaxRecordSize {
		return 0, false, 0, DecodingError("ReadMessage", "", fmt.Sprintf("invalid record length %d", size))
	}
	switch header[frameLengthSize] {
	case controlApplication:
	case controlInternal:
		internal = true
	default:
		return 0, false, 0, DecodingError("ReadMessage", "", fmt.Sprintf("invalid control flag 0x%02x", header[frameLengthSize]))
	}
	nameLen = int(binary.BigEndian.Uint16(header[frameLengthSize+1:]))
	return size, internal, nameLen, nil
}

func decodeBody(name, record []byte, internal bool) (*Message, error) {
	msg := &Message{name: string(name), internal: internal, content: NewRecord()}
	n, err := msg.content.Unmarshal(record)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.Op = "ReadMessage"
			if e.Name == "" {
				e.Name = msg.name
			}
		}
		return nil, err
	}
	if n != len(record) {
		return nil, DecodingError("ReadMessage", msg.name, fmt.Sprintf("record length %d does not match frame length %d", n, len(record)))
	}
	return msg, nil
}
