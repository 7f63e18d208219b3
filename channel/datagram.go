package channel

import (
	"encoding/binary"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/comp7005/reliablestream/packet"
)

// maxDatagramSize bounds a single recvfrom(); large enough for
// DefaultMaxPayload plus framing with headroom.
const maxDatagramSize = 4096

// Datagram is a Channel over a lossy, unordered net.PacketConn (UDP).
// Exactly one framed record travels per datagram; there is no
// accumulation buffer because datagram boundaries already are frame
// boundaries.
type Datagram struct {
	mu       sync.Mutex
	conn     net.PacketConn
	peer     net.Addr
	haveAddr bool // true once a destination has been dialed or latched
	isServer bool // server role: latches peer from first receipt
	closed   bool
	maxPayld int
	pending  []byte // bytes salvaged from the rendezvous datagram, if any
}

// DialDatagram opens a UDP socket and fixes the destination address
// immediately — the client role always knows its peer.
func DialDatagram(addr string) (*Datagram, error) {
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, errors.Wrap(err, "channel: open datagram socket")
	}
	peer, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "channel: resolve datagram peer")
	}
	return &Datagram{conn: conn, peer: peer, haveAddr: true, maxPayld: DefaultMaxPayload}, nil
}

// ListenDatagramSingleRemote binds a UDP socket and waits for the
// first datagram to arrive before returning, latching the sender's
// address as the sole peer. Any initial datagram is accepted purely to
// learn the client's address, including an empty one sent only as a
// rendezvous probe; its bytes (if any) are salvaged into pending so
// Recv can still deliver them if they happen to parse as a real frame.
func ListenDatagramSingleRemote(port int) (*Datagram, error) {
	conn, err := net.ListenPacket("udp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, errors.Wrap(err, "channel: listen datagram")
	}

	d := &Datagram{conn: conn, isServer: true, maxPayld: DefaultMaxPayload}

	buf := make([]byte, maxDatagramSize)
	for !d.haveAddr {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "channel: awaiting rendezvous datagram")
		}
		d.peer = addr
		d.haveAddr = true
		if n > 0 {
			d.pending = append([]byte(nil), buf[:n]...)
		}
	}

	return d, nil
}

func (d *Datagram) Send(p packet.Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	// Server role: block-with-retry until a peer address has been
	// observed.
	for !d.haveAddr {
		d.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		d.mu.Lock()
		if d.closed {
			return ErrClosed
		}
	}

	body := packet.Encode(p)
	frame := make([]byte, lengthPrefixSize+len(body))
	binary.LittleEndian.PutUint32(frame[:lengthPrefixSize], uint32(len(body)))
	copy(frame[lengthPrefixSize:], body)

	if _, err := d.conn.WriteTo(frame, d.peer); err != nil {
		d.closeLocked()
		return ErrClosed
	}

	return nil
}

// pending holds bytes salvaged from the rendezvous datagram consumed
// during ListenDatagramSingleRemote, so Recv still has a chance to
// deliver it if it happened to be a real frame.
func (d *Datagram) Recv() (packet.Packet, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return packet.Packet{}, false, ErrClosed
	}

	var raw []byte
	if len(d.pending) > 0 {
		raw = d.pending
		d.pending = nil
	} else {
		d.conn.SetReadDeadline(time.Now().Add(recvPollTimeout))
		buf := make([]byte, maxDatagramSize)
		n, addr, err := d.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return packet.Packet{}, false, nil
			}
			d.closeLocked()
			return packet.Packet{}, false, ErrClosed
		}

		if d.isServer {
			// Latch only while no peer has yet been observed; once
			// latched, datagrams from a different address are stray
			// and ignored rather than silently re-latching the peer.
			if !d.haveAddr {
				d.peer = addr
				d.haveAddr = true
			} else if !sameAddr(d.peer, addr) {
				return packet.Packet{}, false, nil
			}
		}

		raw = buf[:n]
	}

	if len(raw) < lengthPrefixSize {
		return packet.Packet{}, false, nil
	}

	frameLen := int(binary.LittleEndian.Uint32(raw[:lengthPrefixSize]))
	body := raw[lengthPrefixSize:]
	if len(body) < frameLen {
		return packet.Packet{}, false, nil
	}

	p, err := packet.Decode(body[:frameLen])
	if err != nil {
		d.closeLocked()
		return packet.Packet{}, false, ErrClosed
	}

	return p, true, nil
}

func sameAddr(a, b net.Addr) bool {
	return a != nil && b != nil && a.String() == b.String()
}

func (d *Datagram) MaxPayloadHint() int {
	return d.maxPayld
}

func (d *Datagram) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
	return nil
}

func (d *Datagram) closeLocked() {
	if d.closed {
		return
	}
	d.closed = true
	d.conn.Close()
}
