package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/grouplab/inetwork/pkg/pubsub"
	"github.com/grouplab/inetwork/pkg/wire"
)

// parseTransferType maps a CLI type name onto a wire type
func parseTransferType(s string) (wire.TransferType, error) {
	switch strings.ToLower(s) {
	case "bool":
		return wire.Bool, nil
	case "byte":
		return wire.Byte, nil
	case "double":
		return wire.Double, nil
	case "float":
		return wire.Float, nil
	case "int":
		return wire.Int, nil
	case "long":
		return wire.Long, nil
	case "short":
		return wire.Short, nil
	case "string", "":
		return wire.String, nil
	case "binary", "hex":
		return wire.Binary, nil
	case "null":
		return wire.Null, nil
	case "any", "unknown":
		return wire.Unknown, nil
	default:
		return wire.Unknown, fmt.Errorf("unknown field type %q", s)
	}
}

// parseValue converts text into the Go value AddValue expects for t
func parseValue(t wire.TransferType, text string) (any, error) {
	switch t {
	case wire.Bool:
		return strconv.ParseBool(text)
	case wire.Byte:
		v, err := strconv.ParseUint(text, 0, 8)
		return uint8(v), err
	case wire.Double:
		return strconv.ParseFloat(text, 64)
	case wire.Float:
		v, err := strconv.ParseFloat(text, 32)
		return float32(v), err
	case wire.Int:
		v, err := strconv.ParseInt(text, 0, 32)
		return int32(v), err
	case wire.Long:
		return strconv.ParseInt(text, 0, 64)
	case wire.Short:
		v, err := strconv.ParseInt(text, 0, 16)
		return int16(v), err
	case wire.String:
		return text, nil
	case wire.Binary:
		return hex.DecodeString(text)
	case wire.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("fields of type %s cannot be given on the command line", t)
	}
}

// parseField reads "name=type:value", "name=value" (a string) or "name=null"
func parseField(spec string) (string, any, error) {
	name, rest, ok := strings.Cut(spec, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("field %q: want name=type:value", spec)
	}
	if rest == "null" {
		return name, nil, nil
	}

	typeName, text, typed := strings.Cut(rest, ":")
	if !typed {
		return name, rest, nil
	}
	t, err := parseTransferType(typeName)
	if err != nil {
		// "url=http://x" is a string containing a colon
		return name, rest, nil
	}
	v, err := parseValue(t, text)
	if err != nil {
		return "", nil, fmt.Errorf("field %q: %w", spec, err)
	}
	return name, v, nil
}

// buildMessage assembles a message from field specs
func buildMessage(name string, internal bool, specs []string) (*wire.Message, error) {
	msg := wire.NewMessage(name)
	if internal {
		msg = wire.NewInternalMessage(name)
	}
	for _, spec := range specs {
		field, v, err := parseField(spec)
		if err != nil {
			return nil, err
		}
		if err := msg.AddValue(field, v); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// parseTemplate reads "Name" or "Name:field=type,field=type"
func parseTemplate(spec string) (*pubsub.Template, error) {
	name, rest, _ := strings.Cut(spec, ":")
	if name == "" {
		return nil, fmt.Errorf("template %q: missing name", spec)
	}

	t := pubsub.NewTemplate(name)
	if rest == "" {
		return t, nil
	}
	for _, part := range strings.Split(rest, ",") {
		field, typeName, _ := strings.Cut(strings.TrimSpace(part), "=")
		if field == "" {
			return nil, fmt.Errorf("template %q: empty field name", spec)
		}
		ft, err := parseTransferType(typeName)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", spec, err)
		}
		if typeName == "" {
			ft = wire.Unknown
		}
		t.AddField(pubsub.NewField(field, ft))
	}
	return t, nil
}

func parseTemplates(specs []string) ([]*pubsub.Template, error) {
	out := make([]*pubsub.Template, 0, len(specs))
	for _, spec := range specs {
		t, err := parseTemplate(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
