package channel

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/comp7005/reliablestream/packet"
)

// recvPollTimeout bounds how long Recv blocks waiting for the socket
// to become readable before reporting "nothing ready yet".
const recvPollTimeout = 10 * time.Millisecond

// lengthPrefixSize is the width of the u32 frame-length prefix.
const lengthPrefixSize = 4

// ByteStream is a Channel over a lossless, ordered net.Conn (TCP or
// unix-domain). It accumulates arbitrary read chunks into recvBuf and
// parses exactly one frame per Recv call.
type ByteStream struct {
	mu       sync.Mutex
	conn     net.Conn
	recvBuf  []byte
	closed   bool
	maxPayld int
}

// NewByteStream wraps an already-connected net.Conn.
func NewByteStream(conn net.Conn) *ByteStream {
	return &ByteStream{conn: conn, maxPayld: DefaultMaxPayload}
}

// DialByteStream connects to addr over TCP and returns the client-side
// Channel (the client always knows its peer, unlike the server role).
func DialByteStream(network, addr string) (*ByteStream, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, errors.Wrap(err, "channel: dial byte-stream")
	}
	return NewByteStream(conn), nil
}

// ListenByteStreamSingleRemote listens on addr and blocks until exactly
// one peer connects, then stops listening: each endpoint talks to
// exactly one peer for its lifetime.
func ListenByteStreamSingleRemote(network, addr string) (*ByteStream, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, errors.Wrap(err, "channel: listen byte-stream")
	}
	defer ln.Close()

	conn, err := ln.Accept()
	if err != nil {
		return nil, errors.Wrap(err, "channel: accept byte-stream")
	}

	return NewByteStream(conn), nil
}

func (b *ByteStream) Send(p packet.Packet) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	body := packet.Encode(p)
	frame := make([]byte, lengthPrefixSize+len(body))
	binary.LittleEndian.PutUint32(frame[:lengthPrefixSize], uint32(len(body)))
	copy(frame[lengthPrefixSize:], body)

	if _, err := writeAll(b.conn, frame); err != nil {
		b.closeLocked()
		return ErrClosed
	}

	return nil
}

func (b *ByteStream) Recv() (packet.Packet, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return packet.Packet{}, false, ErrClosed
	}

	expected := -1
	if len(b.recvBuf) >= lengthPrefixSize {
		expected = lengthPrefixSize + int(binary.LittleEndian.Uint32(b.recvBuf[:lengthPrefixSize]))
	}

	if expected < 0 || len(b.recvBuf) < expected {
		b.conn.SetReadDeadline(time.Now().Add(recvPollTimeout))
		chunk := make([]byte, 4096)
		n, err := b.conn.Read(chunk)
		if n > 0 {
			b.recvBuf = append(b.recvBuf, chunk[:n]...)
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// nothing ready this tick
			} else {
				// EOF, reset, or any other read failure: no
				// resynchronization is possible, so treat it as a
				// permanent close.
				b.closeLocked()
				return packet.Packet{}, false, ErrClosed
			}
		}
	}

	if len(b.recvBuf) >= lengthPrefixSize {
		expected = lengthPrefixSize + int(binary.LittleEndian.Uint32(b.recvBuf[:lengthPrefixSize]))
	} else {
		return packet.Packet{}, false, nil
	}

	if len(b.recvBuf) < expected {
		return packet.Packet{}, false, nil
	}

	body := b.recvBuf[lengthPrefixSize:expected]
	p, err := packet.Decode(body)
	b.recvBuf = append([]byte(nil), b.recvBuf[expected:]...)
	if err != nil {
		// Malformed frame: treated as channel-closed, since the
		// protocol has no resynchronization.
		b.closeLocked()
		return packet.Packet{}, false, ErrClosed
	}

	return p, true, nil
}

func (b *ByteStream) MaxPayloadHint() int {
	return b.maxPayld
}

func (b *ByteStream) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
	return nil
}

func (b *ByteStream) closeLocked() {
	if b.closed {
		return
	}
	b.closed = true
	b.conn.Close()
}

func writeAll(w io.Writer, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

