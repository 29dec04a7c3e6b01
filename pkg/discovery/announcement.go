package discovery

import (
	"github.com/grouplab/inetwork/pkg/wire"
)

// Discovery control message names
const (
	LookupName   = "LU"
	ResponseName = "RE"
)

// Field names carried by LU and RE messages
const (
	fieldType = "type"
	fieldName = "name"
	fieldIP   = "ip"
	fieldPort = "port"
)

// announcement is the decoded content of an LU or RE message. Empty Name or
// IP travel as null fields.
type announcement struct {
	Kind string
	Type ServerType
	Name string
	IP   string
	Port int
}

// Endpoint describes the party sending lookups or responses: a responder's
// own server, or a requester (which usually has no address).
type Endpoint struct {
	Type ServerType
	Name string
	IP   string
	Port int
}

func (e Endpoint) announce(kind string) announcement {
	return announcement{Kind: kind, Type: e.Type, Name: e.Name, IP: e.IP, Port: e.Port}
}

func (a announcement) message() *wire.Message {
	msg := wire.NewMessage(a.Kind)
	_ = msg.AddInt(fieldType, int32(a.Type))
	addNullable(msg, fieldName, a.Name)
	addNullable(msg, fieldIP, a.IP)
	_ = msg.AddInt(fieldPort, int32(a.Port))
	return msg
}

func addNullable(msg *wire.Message, name, value string) {
	if value == "" {
		_ = msg.AddNull(name)
		return
	}
	_ = msg.AddString(name, value)
}

// parseAnnouncement decodes an LU or RE message. ok is false for any other
// message or when the type field is missing.
func parseAnnouncement(msg *wire.Message) (a announcement, ok bool) {
	if msg == nil || (msg.Name() != LookupName && msg.Name() != ResponseName) {
		return a, false
	}
	t, err := msg.GetInt(fieldType)
	if err != nil {
		return a, false
	}

	a = announcement{Kind: msg.Name(), Type: ServerType(t), Port: -1}
	if stringField(msg, fieldIP) {
		a.IP, _ = msg.GetString(fieldIP)
	}
	if d, found := msg.Content().Descriptor(fieldPort); found && d.Type == wire.Int {
		if port, err := msg.GetInt(fieldPort); err == nil {
			a.Port = int(port)
		}
	}
	if stringField(msg, fieldName) {
		a.Name, _ = msg.GetString(fieldName)
	}
	return a, true
}

func stringField(msg *wire.Message, name string) bool {
	d, found := msg.Content().Descriptor(name)
	return found && d.Type == wire.String && !msg.IsNull(name)
}

// isOwn reports whether a is an echo of self. Parties without an address
// never match.
func (a announcement) isOwn(self Endpoint) bool {
	return a.IP != "" && a.IP == self.IP && a.Port == self.Port && a.Type == self.Type
}

func (a announcement) result(source string) Result {
	return Result{Name: a.Name, IP: a.IP, Port: a.Port, Type: a.Type, Source: source}
}
