package mutator

import (
	"github.com/comp7005/reliablestream/packet"
	"github.com/comp7005/reliablestream/rsautil"
)

// Crypto applies a fixed-width modular-exponentiation transform to a
// packet's payload only, never its sequence/window header fields — the
// header must stay in the clear for length-prefixed framing to work.
// Decrypt selects direction: false runs rsautil.Encrypt (the transmit
// side, keyed on the private half), true runs rsautil.Decrypt (the
// receive side, keyed on the public half). Oversized or malformed
// blocks are dropped rather than corrupted or fragmented.
type Crypto struct {
	Key     rsautil.Key
	Decrypt bool

	// OnError, if set, observes a block that didn't survive the
	// transform instead of silently dropping it. It is called once for
	// every dropped block: malformed/oversized conditions shouldn't be
	// fatal, but also shouldn't be invisible.
	OnError func(error)
}

func (c Crypto) Apply(p packet.Packet) (packet.Packet, bool) {
	if len(p.Data) == 0 {
		return p, true
	}

	transform := rsautil.Encrypt
	if c.Decrypt {
		transform = rsautil.Decrypt
	}

	out, err := transform(p.Data, c.Key)
	if err != nil {
		if c.OnError != nil {
			c.OnError(err)
		}
		return packet.Packet{}, false
	}

	p.Data = out
	return p, true
}

// MaxPayloadLen is the largest plaintext segment this Crypto mutator
// will encrypt without dropping it; stream segmentation on the
// transmit side must not exceed this, or every oversized segment is
// silently dropped and the stream stalls.
func (c Crypto) MaxPayloadLen() int {
	return rsautil.MaxPayloadLen(c.Key)
}
