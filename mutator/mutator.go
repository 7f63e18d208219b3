// Package mutator implements the per-packet filter chain: drop
// simulation, statistics counters, and composition. The crypto
// transform lives in crypto.go since it needs rsautil.
package mutator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/comp7005/reliablestream/packet"
)

// Mutator is a unary packet transform that may drop a packet by
// returning ok=false. Implementations that carry mutable state (drop
// rate, counters) must be safe for concurrent use, since a
// controller-poll goroutine can update drop rates concurrently with
// the bridge worker applying them.
type Mutator interface {
	Apply(p packet.Packet) (packet.Packet, bool)
}

// Func adapts a plain function to the Mutator interface.
type Func func(p packet.Packet) (packet.Packet, bool)

func (f Func) Apply(p packet.Packet) (packet.Packet, bool) { return f(p) }

// NoOp passes every packet through unchanged.
var NoOp Mutator = Func(func(p packet.Packet) (packet.Packet, bool) { return p, true })

// RandomDrop drops packets with a live-updatable probability, the
// proxy's loss-simulation primitive.
type RandomDrop struct {
	mu     sync.Mutex
	chance float64
	rand   *rand.Rand
}

// NewRandomDrop builds a RandomDrop with an initial drop probability
// in [0, 1].
func NewRandomDrop(chance float64) *RandomDrop {
	return &RandomDrop{chance: chance, rand: rand.New(rand.NewSource(randSeed()))}
}

// SetDrop updates the drop probability; safe to call from a different
// goroutine than Apply (the controller-poll loop does exactly this).
func (r *RandomDrop) SetDrop(chance float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chance = chance
}

func randSeed() int64 { return time.Now().UnixNano() }

func (r *RandomDrop) Apply(p packet.Packet) (packet.Packet, bool) {
	r.mu.Lock()
	chance := r.chance
	r.mu.Unlock()

	if r.rand.Float64() < chance {
		return packet.Packet{}, false
	}
	return p, true
}

// Composite sequentially applies outer after inner; a drop at the
// inner stage short-circuits the outer one.
type Composite struct {
	Outer, Inner Mutator
}

// Compose builds the single composition primitive every other mutator
// (stats, crypto) is expressed in terms of.
func Compose(outer, inner Mutator) Mutator {
	if inner == nil {
		return outer
	}
	if outer == nil {
		return inner
	}
	return Composite{Outer: outer, Inner: inner}
}

func (c Composite) Apply(p packet.Packet) (packet.Packet, bool) {
	p, ok := c.Inner.Apply(p)
	if !ok {
		return packet.Packet{}, false
	}
	return c.Outer.Apply(p)
}

// CounterSink is the controller-client capability StatsRelay needs:
// post a +1 delta for a named counter. controllerclient.Client
// satisfies this.
type CounterSink interface {
	PostDelta(key string)
}

// StatsRelay applies an optional inner mutator, and on a surviving
// packet posts a +1 delta for key to sink before returning the packet
// unchanged.
type StatsRelay struct {
	Key   string
	Sink  CounterSink
	Inner Mutator
}

func (s StatsRelay) Apply(p packet.Packet) (packet.Packet, bool) {
	if s.Inner != nil {
		var ok bool
		p, ok = s.Inner.Apply(p)
		if !ok {
			return packet.Packet{}, false
		}
	}

	if s.Sink != nil {
		s.Sink.PostDelta(s.Key)
	}

	return p, true
}
