package stream

import (
	"time"

	"github.com/comp7005/reliablestream/channel"
	"github.com/comp7005/reliablestream/mutator"
)

// QueueDepth is the bounded capacity of each of a Stream's two
// application-facing byte queues.
const QueueDepth = 10

// Stream is the user-facing byte-oriented handle on top of a Worker.
// It owns its Worker and the application-side ends of its two bounded
// queues exclusively.
type Stream struct {
	worker      *Worker
	dataIn      chan []byte
	dataOut     chan []byte
	segmentSize int
	closed      bool
}

// Options configures a Stream beyond its Channel and mutators.
type Options struct {
	// RecvMutator / TransmitMutator are applied to every packet this
	// Stream's worker receives / is about to send.
	RecvMutator, TransmitMutator mutator.Mutator

	// AckTimeout overrides DefaultAckTimeout; zero keeps the default.
	AckTimeout time.Duration

	// SegmentSize overrides ch.MaxPayloadHint() for Write's
	// chunking. A crypto-enabled Stream sets this to the crypto
	// mutator's MaxPayloadLen(), the largest plaintext segment it can
	// encrypt without dropping it.
	SegmentSize int
}

// New binds a Channel and starts the worker immediately.
func New(ch channel.Channel, opts Options) *Stream {
	segmentSize := opts.SegmentSize
	if segmentSize <= 0 {
		segmentSize = ch.MaxPayloadHint()
	}

	s := &Stream{
		dataIn:      make(chan []byte, QueueDepth),
		dataOut:     make(chan []byte, QueueDepth),
		segmentSize: segmentSize,
	}

	s.worker = NewWorker(ch, s.dataIn, s.dataOut, opts.RecvMutator, opts.TransmitMutator, opts.AckTimeout)
	go s.worker.Run()

	return s
}

// PreferredSegmentSize is the chunk size Write segments input into.
func (s *Stream) PreferredSegmentSize() int {
	return s.segmentSize
}

// Write segments data into PreferredSegmentSize() chunks and pushes
// each onto the outbound queue, blocking when it is full — the only
// mechanism by which application-side backpressure propagates.
func (s *Stream) Write(data []byte) {
	if len(data) == 0 {
		return
	}

	for offset := 0; offset < len(data); offset += s.segmentSize {
		end := offset + s.segmentSize
		if end > len(data) {
			end = len(data)
		}
		chunk := append([]byte(nil), data[offset:end]...)
		s.dataIn <- chunk
	}
}

// Read returns delivered bytes. If minRead <= 0 it drains whatever is
// immediately available without blocking. Otherwise it accumulates
// until minRead bytes are available or timeout elapses (zero timeout
// means wait indefinitely). Encountering the closed dataOut channel
// latches closed and returns whatever was accumulated so far.
func (s *Stream) Read(minRead int, timeout time.Duration) []byte {
	var buffer []byte

	if minRead <= 0 {
		for {
			select {
			case chunk, ok := <-s.dataOut:
				if !ok {
					s.closed = true
					return buffer
				}
				buffer = append(buffer, chunk...)
			default:
				return buffer
			}
		}
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for len(buffer) < minRead {
		select {
		case chunk, ok := <-s.dataOut:
			if !ok {
				s.closed = true
				return buffer
			}
			buffer = append(buffer, chunk...)
		case <-deadline:
			return buffer
		}
	}

	return buffer
}

// IsOpen reports whether the stream has not yet observed channel
// closure.
func (s *Stream) IsOpen() bool {
	return !s.closed
}

// Close stops the worker and waits for it to exit. The worker's Run
// loop closes the delivery queue (dataOut) as part of its shutdown,
// which wakes any blocked Read.
func (s *Stream) Close() {
	s.worker.Stop()
	<-s.worker.Done()
	s.closed = true
}
