package tap

import (
	"fmt"
	"math"

	"github.com/grouplab/inetwork/pkg/wire"
)

// Event is the JSON document pushed to tap clients for every message
type Event struct {
	Name     string       `json:"name"`
	Internal bool         `json:"internal"`
	Fields   []FieldValue `json:"fields"`
}

// FieldValue is one decoded field. Nested records decode to a list of
// FieldValues; binary values are base64 strings.
type FieldValue struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`
}

// EventOf converts a message into its JSON form
func EventOf(msg *wire.Message) Event {
	return Event{
		Name:     msg.Name(),
		Internal: msg.IsInternal(),
		Fields:   fieldsOf(msg.Content()),
	}
}

func fieldsOf(r *wire.Record) []FieldValue {
	fields := make([]FieldValue, 0, r.Len())
	for _, d := range r.Fields() {
		fv := FieldValue{Name: d.Name, Type: d.Type.String()}

		v, err := r.GetValue(d.Name)
		if err != nil {
			fv.Error = err.Error()
			fields = append(fields, fv)
			continue
		}
		fv.Value = jsonValue(v)
		fields = append(fields, fv)
	}
	return fields
}

// jsonValue maps decoded values onto types encoding/json accepts
func jsonValue(v any) any {
	switch x := v.(type) {
	case *wire.Record:
		if x == nil {
			return nil
		}
		return fieldsOf(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Sprint(x)
		}
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(x)
		}
	}
	return v
}
