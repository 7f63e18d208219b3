// Package channel adapts datagram and byte-stream transports to a
// single packet-oriented contract so the reliability engine in package
// stream never has to know which one it is talking to.
package channel

import (
	"errors"

	"github.com/comp7005/reliablestream/packet"
)

// ErrClosed is returned by Send and Recv once the channel has observed
// a permanent failure: peer close, socket reset, or a local Close.
// There is no retry at this layer; the reliability layer above decides
// what, if anything, a transient condition means.
var ErrClosed = errors.New("channel: closed")

// DefaultMaxPayload is the advisory per-packet payload ceiling used
// when a transport has no stronger opinion.
const DefaultMaxPayload = 2048

// Channel is the capability contract the stream package needs from a
// transport: send one packet, try to receive one packet, report the
// preferred payload size, and close idempotently. There is no type
// hierarchy here by design — bytestream.go and datagram.go each
// implement this independently.
type Channel interface {
	// Send transmits one packet. For byte-stream implementations this
	// writes length-prefixed bytes as a single atomic write; for
	// datagram implementations it emits exactly one datagram. Returns
	// ErrClosed on permanent failure.
	Send(p packet.Packet) error

	// Recv is non-blocking: it returns (p, true, nil) if a full frame
	// was available, (zero, false, nil) if nothing was ready yet, and
	// (zero, false, ErrClosed) if the transport is permanently gone.
	Recv() (packet.Packet, bool, error)

	// MaxPayloadHint is the preferred maximum payload size in bytes;
	// the stream layer segments writes to this size.
	MaxPayloadHint() int

	// Close is idempotent.
	Close() error
}
