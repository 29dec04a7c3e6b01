package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// Scalar values are little-endian; every framing integer (record length,
// name length, value length, message length) is big-endian.
var scalarOrder = binary.LittleEndian

// nullValue is how a nil, empty string or empty binary travels on the wire.
// Bool false shares the same encoding, so readers only treat it as null when
// the requested type is not Bool.
var nullValue = []byte{0}

// Transferable is implemented by types that can be carried in an Object field.
// TransferID names the factory that rebuilds the value on the receiving side.
type Transferable interface {
	TransferID() string
	WriteRecord(r *Record) error
}

// Factory rebuilds a Transferable from the nested record it was written into.
type Factory func(r *Record) (Transferable, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a Transferable type decodable under id. Registering the
// same id twice replaces the earlier factory.
func Register(id string, f Factory) {
	if id == "" || f == nil {
		panic("wire: Register requires an id and a factory")
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[id] = f
}

func factoryFor(id string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[id]
	return f, ok
}

// TypeOf reports the transfer type a Go value would be encoded as.
func TypeOf(value any) TransferType {
	switch value.(type) {
	case nil:
		return Null
	case bool:
		return Bool
	case uint8:
		return Byte
	case float64:
		return Double
	case float32:
		return Float
	case int32, int:
		return Int
	case int64:
		return Long
	case int16:
		return Short
	case string:
		return String
	case []byte:
		return Binary
	case *Record, Transferable:
		return Object
	default:
		return Unknown
	}
}

// EncodeValue converts a Go value into its transfer type and payload bytes.
func EncodeValue(value any) (TransferType, []byte, error) {
	switch v := value.(type) {
	case nil:
		return Null, nullValue, nil
	case bool:
		if v {
			return Bool, []byte{1}, nil
		}
		return Bool, []byte{0}, nil
	case uint8:
		return Byte, []byte{v}, nil
	case float64:
		return Double, scalarOrder.AppendUint64(nil, math.Float64bits(v)), nil
	case float32:
		return Float, scalarOrder.AppendUint32(nil, math.Float32bits(v)), nil
	case int32:
		return Int, scalarOrder.AppendUint32(nil, uint32(v)), nil
	case int:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return Unknown, nil, EncodingError("EncodeValue", "", fmt.Sprintf("int value %d overflows Int", v))
		}
		return Int, scalarOrder.AppendUint32(nil, uint32(int32(v))), nil
	case int64:
		return Long, scalarOrder.AppendUint64(nil, uint64(v)), nil
	case int16:
		return Short, scalarOrder.AppendUint16(nil, uint16(v)), nil
	case string:
		if v == "" {
			return String, nullValue, nil
		}
		return String, []byte(v), nil
	case []byte:
		if len(v) == 0 {
			return Binary, nullValue, nil
		}
		out := make([]byte, len(v))
		copy(out, v)
		return Binary, out, nil
	case *Record:
		if v == nil {
			return Null, nullValue, nil
		}
		return Object, v.Marshal(), nil
	case Transferable:
		nested := NewRecord()
		if err := v.WriteRecord(nested); err != nil {
			return Unknown, nil, &Error{Kind: KindEncoding, Op: "EncodeValue", Name: v.TransferID(),
				Message: "transferable failed to write its record", Err: err}
		}
		return Object, nested.Marshal(), nil
	default:
		return Unknown, nil, EncodingError("EncodeValue", "", fmt.Sprintf("unsupported value type %T", value))
	}
}

// DecodeValue decodes data according to t. Null and Unknown types decode to nil.
// Object payloads decode to a *Record, since the concrete type is only known
// to the caller (see Record.GetObject).
func DecodeValue(t TransferType, data []byte) (any, error) {
	if w := t.width(); w > 0 && len(data) < w {
		return nil, DecodingError("DecodeValue", "", fmt.Sprintf("%s needs %d bytes, got %d", t, w, len(data)))
	}

	switch t {
	case Bool:
		return data[0] != 0, nil
	case Byte:
		return data[0], nil
	case Double:
		return math.Float64frombits(scalarOrder.Uint64(data)), nil
	case Float:
		return math.Float32frombits(scalarOrder.Uint32(data)), nil
	case Int:
		return int32(scalarOrder.Uint32(data)), nil
	case Long:
		return int64(scalarOrder.Uint64(data)), nil
	case Short:
		return int16(scalarOrder.Uint16(data)), nil
	case String:
		if isNull(data) {
			return "", nil
		}
		return string(data), nil
	case Binary:
		if isNull(data) {
			return []byte(nil), nil
		}
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case Object:
		if isNull(data) {
			return (*Record)(nil), nil
		}
		nested := NewRecord()
		if _, err := nested.Unmarshal(data); err != nil {
			return nil, err
		}
		return nested, nil
	case Null, Unknown:
		return nil, nil
	default:
		return nil, DecodingError("DecodeValue", "", fmt.Sprintf("unsupported type tag %d", byte(t)))
	}
}

func isNull(data []byte) bool {
	return len(data) == 1 && data[0] == 0
}
