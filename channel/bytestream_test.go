package channel

import (
	"net"
	"testing"
	"time"

	"github.com/comp7005/reliablestream/packet"
)

func TestByteStreamSendRecv(t *testing.T) {
	a, b := net.Pipe()
	chA := NewByteStream(a)
	chB := NewByteStream(b)
	defer chA.Close()
	defer chB.Close()

	want := packet.Packet{ReadOffset: 1, WriteOffset: 2, RecvWindowSize: 9, Data: []byte("HELLO")}

	go func() {
		if err := chA.Send(want); err != nil {
			t.Errorf("Send: %v", err)
		}
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got, ok, err := chB.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if ok {
			if got.ReadOffset != want.ReadOffset || got.WriteOffset != want.WriteOffset || string(got.Data) != string(want.Data) {
				t.Fatalf("got %+v, want %+v", got, want)
			}
			return
		}
	}
	t.Fatalf("never received packet")
}

func TestByteStreamRecvNothingReady(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	chB := NewByteStream(b)
	defer chB.Close()

	_, ok, err := chB.Recv()
	if err != nil || ok {
		t.Fatalf("expected (false, nil) with nothing sent, got ok=%v err=%v", ok, err)
	}
}

func TestByteStreamCloseIsIdempotent(t *testing.T) {
	a, b := net.Pipe()
	b.Close()
	ch := NewByteStream(a)
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, _, err := ch.Recv(); err != ErrClosed {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}
