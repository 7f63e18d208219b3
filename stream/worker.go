// Package stream implements the sliding-window reliability engine
// (StreamWorker) and the user-facing byte-stream handle (Stream) that
// sits on top of it, plus the proxy-side Forwarder/Bridge that pumps
// framed packets between two Channels without any reliability logic.
package stream

import (
	"sync"
	"time"

	"github.com/comp7005/reliablestream/channel"
	"github.com/comp7005/reliablestream/mutator"
	"github.com/comp7005/reliablestream/packet"
)

const (
	// MaxRecv bounds packets drained from the channel per tick so
	// transmit never starves.
	MaxRecv = 100

	// MaxWindowSize caps additive window growth.
	MaxWindowSize = 10

	// RecvWindowHintSize is the ring length for peer-advertised
	// receive-window samples.
	RecvWindowHintSize = 3

	// MaxBackoffPeriod bounds how long the sender will wait for a
	// zero-window peer before forcing a single probe packet.
	MaxBackoffPeriod = 3 * time.Second

	// DefaultAckTimeout drives retransmission when no progress has
	// been observed.
	DefaultAckTimeout = 2 * time.Second

	// initialWindowSize is the starting send quota before any new
	// transmission has grown it or a retransmit timeout has shrunk it.
	initialWindowSize = 2

	// tickSleep is the per-iteration yield the worker loop takes
	// between phases.
	tickSleep = time.Millisecond
)

// pendingEntry is one unacknowledged outbound packet. seq is one past
// the packet's own WriteOffset, so an incoming ACK with
// ReadOffset > WriteOffset satisfies seq <= maxRemoteReadOffset and
// the entry can be pruned.
type pendingEntry struct {
	seq int32
	pkt packet.Packet
}

// Worker is the reliability engine: one background loop per Stream
// endpoint, owning a Channel and the two bounded byte queues that
// connect it to the application.
type Worker struct {
	ch              channel.Channel
	recvMutator     mutator.Mutator
	transmitMutator mutator.Mutator
	dataIn          chan []byte
	dataOut         chan []byte
	ackTimeout      time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once

	recvWindow           map[int32][]byte
	windowSize           int
	maxRemoteReadOffset  int32
	localReadOffset      int32
	localWriteOffset     int32
	pending              []pendingEntry
	recvWindowSizeHint   []int32
	lastWriteAck         time.Time
	backoffSince         time.Time
	terminated           bool
}

// NewWorker builds a Worker bound to ch; it does not start running
// until Run is called (the Stream constructor starts it in a
// goroutine, mirroring StreamWorker(threading.Thread).start()).
func NewWorker(ch channel.Channel, dataIn, dataOut chan []byte, recvMutator, transmitMutator mutator.Mutator, ackTimeout time.Duration) *Worker {
	if recvMutator == nil {
		recvMutator = mutator.NoOp
	}
	if transmitMutator == nil {
		transmitMutator = mutator.NoOp
	}
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}

	return &Worker{
		ch:              ch,
		recvMutator:     recvMutator,
		transmitMutator: transmitMutator,
		dataIn:          dataIn,
		dataOut:         dataOut,
		ackTimeout:      ackTimeout,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
		recvWindow:      make(map[int32][]byte),
		windowSize:      initialWindowSize,
		lastWriteAck:    time.Now(),
	}
}

// Stop requests the loop exit at its next iteration boundary. Safe to
// call more than once.
func (w *Worker) Stop() {
	w.once.Do(func() { close(w.stopCh) })
}

// Done reports when Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.doneCh
}

// Run executes the cooperative recv/transmit loop until Stop is
// called or the channel closes permanently. It always closes dataOut
// before returning so a blocked reader wakes up.
func (w *Worker) Run() {
	defer close(w.doneCh)
	defer close(w.dataOut)
	// The worker exclusively owns the Channel; it is responsible for
	// tearing it down, which is what lets a local Close() propagate to
	// the peer as a socket close.
	defer w.ch.Close()

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		w.tryRestoreBackoff()
		w.tryReceive()
		if w.terminated {
			return
		}
		w.tryTransmit()
		if w.terminated {
			return
		}

		time.Sleep(tickSleep)
	}
}

func freeSlots(q chan []byte) int32 {
	return int32(cap(q) - len(q))
}

// writeRaw applies the transmit mutator and sends what survives. A
// permanent channel failure marks the worker terminated so Run exits
// at the next phase boundary.
func (w *Worker) writeRaw(p packet.Packet) {
	out, ok := w.transmitMutator.Apply(p)
	if !ok {
		return
	}

	if err := w.ch.Send(out); err != nil {
		w.terminated = true
	}
}

// cleanPending prunes pending's head while its sequence number has
// been cumulatively acknowledged, refreshing lastWriteAck on each
// prune.
func (w *Worker) cleanPending() {
	for len(w.pending) > 0 && w.pending[0].seq <= w.maxRemoteReadOffset {
		w.pending = w.pending[1:]
		w.lastWriteAck = time.Now()
	}
}

// approximateRemoteWindowSize is peer_window(): the floor-mean of the
// recent recv_window_size samples the peer has advertised, or 1 if we
// have none yet. Entering/leaving the zero-window-probing state is
// tracked here, since every caller of peer_window() needs it.
func (w *Worker) approximateRemoteWindowSize() int32 {
	if len(w.recvWindowSizeHint) == 0 {
		return 1
	}

	var sum int32
	for _, v := range w.recvWindowSizeHint {
		sum += v
	}
	r := sum / int32(len(w.recvWindowSizeHint))

	if r == 0 {
		if w.backoffSince.IsZero() {
			w.backoffSince = time.Now()
		}
	} else {
		w.backoffSince = time.Time{}
	}

	return r
}

func (w *Worker) pushWindowHint(sample int32) {
	w.recvWindowSizeHint = append(w.recvWindowSizeHint, sample)
	if len(w.recvWindowSizeHint) > RecvWindowHintSize {
		w.recvWindowSizeHint = w.recvWindowSizeHint[len(w.recvWindowSizeHint)-RecvWindowHintSize:]
	}
}

// tryRestoreBackoff forces one probe sample when the peer has been at
// a zero advertised window for longer than MaxBackoffPeriod.
func (w *Worker) tryRestoreBackoff() {
	if !w.backoffSince.IsZero() && time.Since(w.backoffSince) > MaxBackoffPeriod {
		if w.approximateRemoteWindowSize() == 0 {
			w.recvWindowSizeHint = []int32{1}
		}
	}
}

func (w *Worker) tryReceive() {
	for i := 0; i < MaxRecv; i++ {
		p, ok, err := w.ch.Recv()
		if err != nil {
			w.terminated = true
			return
		}
		if !ok {
			return
		}

		p, ok = w.recvMutator.Apply(p)
		if !ok {
			continue
		}

		if p.ReadOffset > w.maxRemoteReadOffset {
			w.maxRemoteReadOffset = p.ReadOffset
		}
		w.cleanPending()
		w.pushWindowHint(p.RecvWindowSize)

		if p.IsAck() {
			continue
		}

		if p.WriteOffset >= w.localReadOffset {
			if _, exists := w.recvWindow[p.WriteOffset]; !exists {
				w.recvWindow[p.WriteOffset] = p.Data
			}
		}

	drain:
		for {
			data, exists := w.recvWindow[w.localReadOffset]
			if !exists {
				break
			}
			select {
			case w.dataOut <- data:
				delete(w.recvWindow, w.localReadOffset)
				w.localReadOffset++
			default:
				break drain
			}
		}

		w.writeRaw(packet.Ack(w.localReadOffset, freeSlots(w.dataOut)))
		if w.terminated {
			return
		}
	}
}

func (w *Worker) retransmitPending() {
	n := len(w.pending)
	if ws := w.windowSize; ws < n {
		n = ws
	}
	if pw := int(w.approximateRemoteWindowSize()); pw < n {
		n = pw
	}

	for i := 0; i < n; i++ {
		entry := w.pending[i]
		next := packet.Packet{
			ReadOffset:     w.localReadOffset,
			WriteOffset:    entry.pkt.WriteOffset,
			RecvWindowSize: freeSlots(w.dataOut),
			Data:           entry.pkt.Data,
		}
		w.writeRaw(next)
		if w.terminated {
			return
		}
	}
}

func (w *Worker) tryTransmit() {
	w.cleanPending()

	if len(w.pending) > 0 && time.Since(w.lastWriteAck) > w.ackTimeout {
		w.lastWriteAck = time.Now()
		w.retransmitPending()
		w.windowSize = 1
		if w.terminated {
			return
		}
	}

	quota := w.windowSize
	if pw := int(w.approximateRemoteWindowSize()); pw < quota {
		quota = pw
	}

	if len(w.pending) >= quota {
		return
	}

	select {
	case data := <-w.dataIn:
		newPacket := packet.Packet{
			ReadOffset:     w.localReadOffset,
			WriteOffset:    w.localWriteOffset,
			RecvWindowSize: freeSlots(w.dataOut),
			Data:           data,
		}
		w.localWriteOffset++
		w.pending = append(w.pending, pendingEntry{seq: w.localWriteOffset, pkt: newPacket})
		w.lastWriteAck = time.Now()
		w.writeRaw(newPacket)
		w.windowSize++
		if w.windowSize > MaxWindowSize {
			w.windowSize = MaxWindowSize
		}
	default:
	}
}
