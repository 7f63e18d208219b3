package channel

import (
	"net"
	"testing"
	"time"

	"github.com/comp7005/reliablestream/packet"
)

func TestDatagramSendRecv(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := &Datagram{conn: serverConn, isServer: true, maxPayld: DefaultMaxPayload}
	defer server.Close()

	client, err := DialDatagram(serverConn.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	want := packet.Packet{ReadOffset: 0, WriteOffset: 3, RecvWindowSize: 5, Data: []byte("AB")}
	if err := client.Send(want); err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got, ok, err := server.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if ok {
			if got.WriteOffset != want.WriteOffset || string(got.Data) != string(want.Data) {
				t.Fatalf("got %+v, want %+v", got, want)
			}
			if !server.haveAddr {
				t.Fatalf("server did not latch peer address")
			}
			return
		}
	}
	t.Fatalf("never received packet")
}

func TestDatagramSendBlocksUntilPeerKnown(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &Datagram{conn: conn, isServer: true, maxPayld: DefaultMaxPayload}
	defer d.Close()

	done := make(chan error, 1)
	go func() {
		done <- d.Send(packet.Ack(0, 1))
	}()

	select {
	case <-done:
		t.Fatalf("Send returned before a peer address was known")
	case <-time.After(30 * time.Millisecond):
	}

	d.mu.Lock()
	d.peer = conn.LocalAddr()
	d.haveAddr = true
	d.mu.Unlock()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Send never unblocked after peer was latched")
	}
}
