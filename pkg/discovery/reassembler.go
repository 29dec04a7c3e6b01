package discovery

import (
	"errors"
	"fmt"

	"github.com/grouplab/inetwork/pkg/wire"
)

// Reassembler accumulates datagram payloads and extracts complete framed
// messages. One datagram may carry several frames back to back, and one
// frame may span several datagrams.
type Reassembler struct {
	buf []byte
	max int
}

// NewReassembler creates a reassembler that discards its buffer once more
// than maxPending bytes are waiting for a frame to complete
func NewReassembler(maxPending int) *Reassembler {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Reassembler{max: maxPending}
}

// Feed appends data and returns every message that is now complete. On a
// malformed frame the buffer is dropped and the error returned alongside
// the messages decoded before it.
func (a *Reassembler) Feed(data []byte) ([]*wire.Message, error) {
	a.buf = append(a.buf, data...)

	var out []*wire.Message
	for len(a.buf) > 0 {
		msg, n, err := wire.ParseMessage(a.buf)
		if errors.Is(err, wire.ErrIncomplete) {
			break
		}
		if err != nil {
			a.Reset()
			return out, err
		}
		out = append(out, msg)
		a.buf = a.buf[n:]
	}

	if len(a.buf) > a.max {
		pending := len(a.buf)
		a.Reset()
		return out, fmt.Errorf("discarded %d pending bytes, limit is %d", pending, a.max)
	}
	if len(a.buf) == 0 {
		a.buf = nil
	}
	return out, nil
}

// Pending returns the number of buffered bytes not yet forming a frame
func (a *Reassembler) Pending() int {
	return len(a.buf)
}

// Reset drops any partial frame
func (a *Reassembler) Reset() {
	a.buf = nil
}
