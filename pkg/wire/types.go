package wire

import "fmt"

// TransferType identifies how a field value is laid out on the wire.
// The numeric values are the type tags written into every record entry.
type TransferType byte

const (
	Unknown TransferType = 0
	Bool    TransferType = 1
	Byte    TransferType = 2
	Double  TransferType = 3
	Float   TransferType = 4
	Int     TransferType = 5
	Long    TransferType = 6
	Short   TransferType = 7
	String  TransferType = 8
	Binary  TransferType = 9
	Object  TransferType = 10
	Null    TransferType = 11
)

// String returns a human-readable name for the transfer type
func (t TransferType) String() string {
	switch t {
	case Unknown:
		return "Unknown"
	case Bool:
		return "Bool"
	case Byte:
		return "Byte"
	case Double:
		return "Double"
	case Float:
		return "Float"
	case Int:
		return "Int"
	case Long:
		return "Long"
	case Short:
		return "Short"
	case String:
		return "String"
	case Binary:
		return "Binary"
	case Object:
		return "Object"
	case Null:
		return "Null"
	default:
		return fmt.Sprintf("TransferType(%d)", byte(t))
	}
}

// Valid reports whether t is a tag that may appear on the wire.
// Unknown is never written.
func (t TransferType) Valid() bool {
	return t >= Bool && t <= Null
}

// width returns the fixed byte width of scalar types, 0 for variable-length ones.
func (t TransferType) width() int {
	switch t {
	case Bool, Byte:
		return 1
	case Short:
		return 2
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	default:
		return 0
	}
}

// Descriptor names one slot of a Record together with its declared type.
// Two descriptors are the same slot when their names match; the type is
// not part of the identity.
type Descriptor struct {
	Name string
	Type TransferType
}

// Same reports whether d and other address the same slot.
func (d Descriptor) Same(other Descriptor) bool {
	return d.Name != "" && d.Name == other.Name
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s [%s]", d.Name, d.Type)
}
