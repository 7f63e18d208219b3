package stream

import (
	"time"

	"github.com/comp7005/reliablestream/channel"
	"github.com/comp7005/reliablestream/mutator"
)

// bridgePollSleep is the brief pause between Bridge iterations.
const bridgePollSleep = time.Millisecond

// Forwarder pumps packets from src to dest through mutator, with no
// sequence inspection — it is the proxy's oblivious transport
// primitive.
type Forwarder struct {
	Src, Dest channel.Channel
	Mutator   mutator.Mutator
}

// Poll receives at most one packet from Src and, if it survives
// Mutator, sends it to Dest. It returns false once Src has closed
// permanently.
func (f *Forwarder) Poll() bool {
	p, ok, err := f.Src.Recv()
	if err != nil {
		return false
	}
	if !ok {
		return true
	}

	m := f.Mutator
	if m == nil {
		m = mutator.NoOp
	}

	out, keep := m.Apply(p)
	if !keep {
		return true
	}

	if err := f.Dest.Send(out); err != nil {
		return false
	}

	return true
}

// Bridge composes two Forwarders (A->B, B->A) and runs them on one
// cooperative loop, stopping when either direction terminates. It
// owns both Channels and both Forwarders for its lifetime.
type Bridge struct {
	AtoB, BtoA *Forwarder
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewBridge builds a Bridge between sockA and sockB with one mutator
// per direction (either may be nil for no-op passthrough).
func NewBridge(sockA, sockB channel.Channel, abMutator, baMutator mutator.Mutator) *Bridge {
	return &Bridge{
		AtoB:   &Forwarder{Src: sockA, Dest: sockB, Mutator: abMutator},
		BtoA:   &Forwarder{Src: sockB, Dest: sockA, Mutator: baMutator},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run blocks the calling goroutine (callers typically `go bridge.Run()`)
// until either direction's channel closes or Stop is called.
func (b *Bridge) Run() {
	defer close(b.doneCh)

	for {
		select {
		case <-b.stopCh:
			return
		default:
		}

		if !b.AtoB.Poll() || !b.BtoA.Poll() {
			return
		}

		time.Sleep(bridgePollSleep)
	}
}

// Stop requests Run exit at its next iteration boundary.
func (b *Bridge) Stop() {
	select {
	case <-b.stopCh:
	default:
		close(b.stopCh)
	}
}

// Done reports when Run has returned.
func (b *Bridge) Done() <-chan struct{} {
	return b.doneCh
}
