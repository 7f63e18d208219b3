package mutator

import (
	"bytes"
	"testing"

	"github.com/comp7005/reliablestream/packet"
	"github.com/comp7005/reliablestream/rsautil"
)

func TestNoOpPassesThrough(t *testing.T) {
	p := packet.Packet{WriteOffset: 1, Data: []byte("x")}
	got, ok := NoOp.Apply(p)
	if !ok || string(got.Data) != "x" {
		t.Fatalf("NoOp altered packet: %+v, ok=%v", got, ok)
	}
}

func TestRandomDropAlwaysDrop(t *testing.T) {
	r := NewRandomDrop(1.0)
	for i := 0; i < 20; i++ {
		if _, ok := r.Apply(packet.Packet{}); ok {
			t.Fatalf("expected every packet dropped at chance=1.0")
		}
	}
}

func TestRandomDropNeverDrop(t *testing.T) {
	r := NewRandomDrop(0.0)
	for i := 0; i < 20; i++ {
		if _, ok := r.Apply(packet.Packet{}); !ok {
			t.Fatalf("expected no packet dropped at chance=0.0")
		}
	}
}

func TestRandomDropSetDropIsLive(t *testing.T) {
	r := NewRandomDrop(0.0)
	if _, ok := r.Apply(packet.Packet{}); !ok {
		t.Fatalf("expected pass at chance=0.0")
	}
	r.SetDrop(1.0)
	if _, ok := r.Apply(packet.Packet{}); ok {
		t.Fatalf("expected drop after SetDrop(1.0)")
	}
}

func TestCompositeShortCircuitsOnInnerDrop(t *testing.T) {
	inner := Func(func(p packet.Packet) (packet.Packet, bool) { return p, false })
	outerCalled := false
	outer := Func(func(p packet.Packet) (packet.Packet, bool) { outerCalled = true; return p, true })

	c := Compose(outer, inner)
	if _, ok := c.Apply(packet.Packet{}); ok {
		t.Fatalf("expected composite to drop when inner drops")
	}
	if outerCalled {
		t.Fatalf("outer should not run after inner drops")
	}
}

func TestComposeNilHalves(t *testing.T) {
	if Compose(NoOp, nil) != NoOp {
		t.Fatalf("Compose(x, nil) should return x unchanged")
	}
}

type fakeSink struct {
	calls []string
}

func (f *fakeSink) PostDelta(key string) { f.calls = append(f.calls, key) }

func TestStatsRelayPostsOnSurvival(t *testing.T) {
	sink := &fakeSink{}
	relay := StatsRelay{Key: "client_sent", Sink: sink}

	if _, ok := relay.Apply(packet.Packet{}); !ok {
		t.Fatalf("expected pass-through")
	}
	if len(sink.calls) != 1 || sink.calls[0] != "client_sent" {
		t.Fatalf("expected one delta posted, got %v", sink.calls)
	}
}

func TestStatsRelaySkipsOnInnerDrop(t *testing.T) {
	sink := &fakeSink{}
	relay := StatsRelay{Key: "client_sent", Sink: sink, Inner: Func(func(p packet.Packet) (packet.Packet, bool) {
		return p, false
	})}

	if _, ok := relay.Apply(packet.Packet{}); ok {
		t.Fatalf("expected drop to propagate")
	}
	if len(sink.calls) != 0 {
		t.Fatalf("should not post a delta for a dropped packet")
	}
}

func TestCryptoRoundTrip(t *testing.T) {
	pub, priv, err := rsautil.GenerateKeyPair(64)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	plain := []byte("hi")

	enc := Crypto{Key: priv}
	dec := Crypto{Key: pub, Decrypt: true}

	ciphered, ok := enc.Apply(packet.Packet{WriteOffset: 1, Data: plain})
	if !ok {
		t.Fatalf("encrypt dropped packet")
	}

	recovered, ok := dec.Apply(ciphered)
	if !ok {
		t.Fatalf("decrypt dropped packet")
	}

	if string(recovered.Data) != string(plain) {
		t.Fatalf("round trip mismatch: got %v want %v", recovered.Data, plain)
	}
}

func TestCryptoRoundTripAtMaxPayloadLen(t *testing.T) {
	pub, priv, err := rsautil.GenerateKeyPair(64)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	enc := Crypto{Key: priv}
	dec := Crypto{Key: pub, Decrypt: true}

	plain := bytes.Repeat([]byte{0xff}, enc.MaxPayloadLen())

	ciphered, ok := enc.Apply(packet.Packet{Data: plain})
	if !ok {
		t.Fatalf("encrypt dropped a packet at exactly MaxPayloadLen")
	}

	recovered, ok := dec.Apply(ciphered)
	if !ok {
		t.Fatalf("decrypt dropped packet")
	}

	if !bytes.Equal(recovered.Data, plain) {
		t.Fatalf("round trip mismatch: got %x want %x", recovered.Data, plain)
	}
}

func TestCryptoOversizedBlockDrops(t *testing.T) {
	pub, _, err := rsautil.GenerateKeyPair(64)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	c := Crypto{Key: pub}
	oversized := make([]byte, c.MaxPayloadLen()+16)
	if _, ok := c.Apply(packet.Packet{Data: oversized}); ok {
		t.Fatalf("expected oversized block to be dropped")
	}
}
