// Package packet defines the on-wire record for the reliable stream
// protocol and its length-prefixed framing.
package packet

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// headerSize is the encoded size of the three fixed-order fields that
// precede the payload: recv_window_size, read_offset, write_offset.
const headerSize = 12

// AckOffset is the sentinel write_offset that marks a pure ACK: no
// payload, never inserted into a receive-reorder window.
const AckOffset = -1

// Packet is the immutable unit exchanged between a Channel and a
// StreamWorker.
type Packet struct {
	ReadOffset     int32
	WriteOffset    int32
	RecvWindowSize int32
	Data           []byte
}

// Ack builds a pure-ACK packet advancing readOffset and advertising
// recvWindowSize free slots. It carries no payload.
func Ack(readOffset, recvWindowSize int32) Packet {
	return Packet{
		ReadOffset:     readOffset,
		WriteOffset:    AckOffset,
		RecvWindowSize: recvWindowSize,
	}
}

// IsAck reports whether p is a pure acknowledgement.
func (p Packet) IsAck() bool {
	return p.WriteOffset == AckOffset
}

// Encode renders p as a wire body: recv_window_size, read_offset,
// write_offset (all little-endian i32), followed by Data. It does not
// include the u32 length prefix a Channel adds around it.
func Encode(p Packet) []byte {
	buf := make([]byte, headerSize+len(p.Data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.RecvWindowSize))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.ReadOffset))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.WriteOffset))
	copy(buf[headerSize:], p.Data)
	return buf
}

// Decode parses a wire body produced by Encode. It fails only when the
// input is shorter than the fixed header; over-long inputs cannot
// occur because a Channel bounds the body by the length prefix it read.
func Decode(body []byte) (Packet, error) {
	if len(body) < headerSize {
		return Packet{}, errors.Errorf("packet: short body: %d bytes, need at least %d", len(body), headerSize)
	}

	p := Packet{
		RecvWindowSize: int32(binary.LittleEndian.Uint32(body[0:4])),
		ReadOffset:     int32(binary.LittleEndian.Uint32(body[4:8])),
		WriteOffset:    int32(binary.LittleEndian.Uint32(body[8:12])),
	}

	if len(body) > headerSize {
		p.Data = append([]byte(nil), body[headerSize:]...)
	}

	return p, nil
}
