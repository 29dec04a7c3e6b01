// Package wire implements the binary format shared by every inetwork peer.
//
// # Records
//
// A Record is an ordered set of uniquely named, typed fields:
//
//	[4-byte BE total length]
//	repeated:
//	  [2-byte BE name length][UTF-8 name]
//	  [1-byte type tag]
//	  [4-byte BE value length][value]
//
// Framing integers are big-endian. Scalar values (Short, Int, Long, Float,
// Double) are little-endian. Strings are UTF-8 without terminator.
//
// # Null values
//
// nil, the empty string and the empty binary value are all written as a
// single zero byte. Readers treat that byte as null for every type except
// Bool, where it means false. This is a compatibility constraint of the
// format; use IsNull to test for it explicitly.
//
// # Messages
//
// A Message wraps one Record with a name and an internal flag and travels
// as one frame:
//
//	[4-byte BE record length][1-byte control flag][2-byte BE name length][name][record]
//
// The control flag is 1 for internal (protocol) messages and 0 otherwise.
//
// # Usage Example
//
//	msg := wire.NewMessage("Ping")
//	if err := msg.AddInt("seq", 1); err != nil {
//	    return err
//	}
//	if _, err := msg.WriteTo(conn); err != nil {
//	    return err
//	}
//
//	reply, err := wire.ReadMessage(conn)
//	if err != nil {
//	    return err
//	}
//	seq, err := reply.GetInt("seq")
//
// # Transferable values
//
// Types implementing Transferable are written into Object fields as a nested
// Record. To read them back, register a Factory under the type's TransferID
// and call GetObject:
//
//	wire.Register("Point", func(r *wire.Record) (wire.Transferable, error) {
//	    x, err := r.GetInt("x")
//	    ...
//	})
package wire
