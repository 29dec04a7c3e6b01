package pubsub

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/grouplab/inetwork/pkg/wire"
)

// Transfer IDs of the pub/sub transferable types
const (
	FieldTransferID    = "inetwork.pubsub.field"
	TemplateTransferID = "inetwork.pubsub.template"
)

func init() {
	wire.Register(FieldTransferID, func(r *wire.Record) (wire.Transferable, error) {
		return readField(r)
	})
	wire.Register(TemplateTransferID, func(r *wire.Record) (wire.Transferable, error) {
		return readTemplate(r)
	})
}

// Field is one named, typed slot of a Template
type Field struct {
	Name string
	Type wire.TransferType
}

// NewField creates a field. Unknown matches a field of any type.
func NewField(name string, t wire.TransferType) Field {
	return Field{Name: name, Type: t}
}

// TransferID implements wire.Transferable
func (f Field) TransferID() string { return FieldTransferID }

// WriteRecord implements wire.Transferable
func (f Field) WriteRecord(r *wire.Record) error {
	if err := r.AddString("name", f.Name); err != nil {
		return err
	}
	return r.AddInt("type", int32(f.Type))
}

func readField(r *wire.Record) (Field, error) {
	name, err := r.GetString("name")
	if err != nil {
		return Field{}, err
	}
	t, err := r.GetInt("type")
	if err != nil {
		return Field{}, err
	}
	return Field{Name: name, Type: wire.TransferType(t)}, nil
}

// Matches reports whether f and other describe the same slot: equal names
// and compatible types. The relation is symmetric.
func (f Field) Matches(other Field) bool {
	return f.Name != "" && f.Name == other.Name && compatible(f.Type, other.Type)
}

// compatible: Unknown matches anything, Null matches String and Binary
func compatible(a, b wire.TransferType) bool {
	if a == b || a == wire.Unknown || b == wire.Unknown {
		return true
	}
	return (a == wire.Null && nullable(b)) || (b == wire.Null && nullable(a))
}

func nullable(t wire.TransferType) bool {
	return t == wire.Null || t == wire.String || t == wire.Binary
}

func (f Field) String() string {
	return fmt.Sprintf("%s [%s]", f.Name, f.Type)
}

// Template declares the shape of messages a subscriber wants: a message
// name and the fields it must carry. Templates are safe for concurrent use.
type Template struct {
	name string

	mu     sync.RWMutex
	fields []Field
}

// NewTemplate creates a template. Duplicate fields are dropped.
func NewTemplate(name string, fields ...Field) *Template {
	t := &Template{name: name}
	for _, f := range fields {
		t.AddField(f)
	}
	return t
}

// TemplateOf derives the implicit template of msg: its name plus the name
// and type of every field
func TemplateOf(msg *wire.Message) *Template {
	t := &Template{name: msg.Name()}
	for _, d := range msg.Fields() {
		t.fields = append(t.fields, Field{Name: d.Name, Type: d.Type})
	}
	return t
}

// Name returns the message name the template applies to
func (t *Template) Name() string { return t.name }

// Fields returns a copy of the template's fields in order
func (t *Template) Fields() []Field {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Field(nil), t.fields...)
}

// AddField appends f unless a matching field is already present. It
// reports whether f was added.
func (t *Template) AddField(f Field) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if indexOf(t.fields, f) >= 0 {
		return false
	}
	t.fields = append(t.fields, f)
	return true
}

// RemoveField removes the first field matching f and reports whether one
// was found
func (t *Template) RemoveField(f Field) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := indexOf(t.fields, f)
	if i < 0 {
		return false
	}
	t.fields = append(t.fields[:i], t.fields[i+1:]...)
	return true
}

func indexOf(fields []Field, f Field) int {
	for i, existing := range fields {
		if existing.Matches(f) {
			return i
		}
	}
	return -1
}

// Matches reports whether candidate has the same name as t and carries
// every field of t. Extra fields in candidate are allowed, so a template
// asking for {a} matches a message carrying {a, b}.
func (t *Template) Matches(candidate *Template) bool {
	if t == nil || candidate == nil || t.name == "" || t.name != candidate.name {
		return false
	}
	mine := t.Fields()
	theirs := candidate.Fields()
	for _, f := range mine {
		if indexOf(theirs, f) < 0 {
			return false
		}
	}
	return true
}

// Accepts reports whether msg has the shape t describes
func (t *Template) Accepts(msg *wire.Message) bool {
	return t.Matches(TemplateOf(msg))
}

// TransferID implements wire.Transferable
func (t *Template) TransferID() string { return TemplateTransferID }

// WriteRecord implements wire.Transferable. Fields are stored as Objects
// keyed "0", "1", ... after the name and the count "num".
func (t *Template) WriteRecord(r *wire.Record) error {
	fields := t.Fields()
	if err := r.AddString("name", t.name); err != nil {
		return err
	}
	if err := r.AddInt("num", int32(len(fields))); err != nil {
		return err
	}
	for i, f := range fields {
		if err := r.AddObject(strconv.Itoa(i), f); err != nil {
			return err
		}
	}
	return nil
}

func readTemplate(r *wire.Record) (*Template, error) {
	name, err := r.GetString("name")
	if err != nil {
		return nil, err
	}
	num, err := r.GetInt("num")
	if err != nil {
		return nil, err
	}
	if num < 0 || int(num) > r.Len() {
		return nil, wire.DecodingError("readTemplate", "num", fmt.Sprintf("invalid field count %d", num))
	}

	t := &Template{name: name, fields: make([]Field, 0, num)}
	for i := 0; i < int(num); i++ {
		obj, err := r.GetObject(strconv.Itoa(i), FieldTransferID)
		if err != nil {
			return nil, err
		}
		f, ok := obj.(Field)
		if !ok {
			return nil, wire.DecodingError("readTemplate", strconv.Itoa(i), "not a field")
		}
		t.fields = append(t.fields, f)
	}
	return t, nil
}

func (t *Template) String() string {
	fields := t.Fields()
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("Template: '%s' { %s }", t.name, strings.Join(parts, ", "))
}
