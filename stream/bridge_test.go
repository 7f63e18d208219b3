package stream

import (
	"testing"
	"time"

	"github.com/comp7005/reliablestream/channel"
	"github.com/comp7005/reliablestream/mutator"
	"github.com/comp7005/reliablestream/packet"
)

func TestForwarderPollCopiesSurvivingPackets(t *testing.T) {
	src := &memChannel{}
	dest := &memChannel{}
	f := &Forwarder{Src: src, Dest: dest}

	src.push(packet.Packet{ReadOffset: 0, WriteOffset: 0, RecvWindowSize: 5, Data: []byte("hi")})

	if !f.Poll() {
		t.Fatalf("expected Poll to report alive")
	}

	sent, ok := dest.lastSent()
	if !ok || string(sent.Data) != "hi" {
		t.Fatalf("expected forwarded packet with data 'hi', got %+v ok=%v", sent, ok)
	}
}

func TestForwarderPollDropsViaMutator(t *testing.T) {
	src := &memChannel{}
	dest := &memChannel{}
	f := &Forwarder{Src: src, Dest: dest, Mutator: mutator.NewRandomDrop(1.0)}

	src.push(packet.Packet{ReadOffset: 0, WriteOffset: 0, RecvWindowSize: 5, Data: []byte("gone")})

	if !f.Poll() {
		t.Fatalf("expected Poll to report alive even when the mutator drops")
	}

	if _, ok := dest.lastSent(); ok {
		t.Fatalf("expected no packet forwarded when the mutator drops everything")
	}
}

func TestForwarderPollStopsOnSourceClose(t *testing.T) {
	src := &memChannel{closed: true}
	dest := &memChannel{}
	f := &Forwarder{Src: src, Dest: dest}

	if f.Poll() {
		t.Fatalf("expected Poll to report dead once the source channel is closed")
	}
}

func TestBridgeForwardsBothDirectionsSymmetrically(t *testing.T) {
	sockA := &memChannel{}
	sockB := &memChannel{}

	b := NewBridge(sockA, sockB, nil, nil)
	go b.Run()
	defer b.Stop()

	sockA.push(packet.Packet{ReadOffset: 0, WriteOffset: 0, RecvWindowSize: 5, Data: []byte("to-b")})
	sockB.push(packet.Packet{ReadOffset: 0, WriteOffset: 0, RecvWindowSize: 5, Data: []byte("to-a")})

	time.Sleep(20 * time.Millisecond)

	toB, ok := sockB.lastSent()
	if !ok || string(toB.Data) != "to-b" {
		t.Fatalf("expected A->B forwarded packet, got %+v ok=%v", toB, ok)
	}

	toA, ok := sockA.lastSent()
	if !ok || string(toA.Data) != "to-a" {
		t.Fatalf("expected B->A forwarded packet, got %+v ok=%v", toA, ok)
	}
}

func TestBridgeAppliesPerDirectionMutators(t *testing.T) {
	sockA := &memChannel{}
	sockB := &memChannel{}

	abDrop := mutator.NewRandomDrop(1.0)

	b := NewBridge(sockA, sockB, abDrop, nil)
	go b.Run()
	defer b.Stop()

	sockA.push(packet.Packet{ReadOffset: 0, WriteOffset: 0, RecvWindowSize: 5, Data: []byte("dropped")})
	sockB.push(packet.Packet{ReadOffset: 0, WriteOffset: 0, RecvWindowSize: 5, Data: []byte("kept")})

	time.Sleep(20 * time.Millisecond)

	if _, ok := sockB.lastSent(); ok {
		t.Fatalf("expected A->B direction to be fully dropped by its mutator")
	}

	toA, ok := sockA.lastSent()
	if !ok || string(toA.Data) != "kept" {
		t.Fatalf("expected B->A direction unaffected, got %+v ok=%v", toA, ok)
	}
}

func TestBridgeStopsWhenOneDirectionCloses(t *testing.T) {
	sockA := &memChannel{}
	sockB := &memChannel{}

	b := NewBridge(sockA, sockB, nil, nil)
	go b.Run()

	sockA.Close()

	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected Bridge to stop after one side closed")
	}
}

var _ channel.Channel = (*memChannel)(nil)
