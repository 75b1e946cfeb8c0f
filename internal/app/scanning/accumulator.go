package scanning

import (
	"bytes"
	"sync"
	"time"
)

const (
	// flushInterval is the longest a buffered output chunk may sit before
	// it is flushed to the sink.
	flushInterval = 500 * time.Millisecond

	// flushThreshold flushes the buffer early once this many bytes are
	// pending, keeping chunks small for streaming consumers.
	flushThreshold = 1000
)

// flushFunc receives the pending chunk since the last flush together with
// the full accumulated output so far.
type flushFunc func(chunk, total []byte)

// outputAccumulator batches raw backend output into bounded chunks. A chunk
// is emitted when flushThreshold bytes are pending or flushInterval elapses
// since the first pending byte, whichever happens first. One accumulator
// serves exactly one run and is discarded afterwards.
type outputAccumulator struct {
	flush flushFunc

	mu      sync.Mutex
	pending bytes.Buffer
	total   bytes.Buffer
	timer   *time.Timer
	closed  bool
}

func newOutputAccumulator(flush flushFunc) *outputAccumulator {
	return &outputAccumulator{flush: flush}
}

// Write appends a chunk of backend output. It flushes immediately once the
// pending buffer crosses the threshold, otherwise arms the interval timer.
func (a *outputAccumulator) Write(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	a.pending.Write(chunk)
	a.total.Write(chunk)

	if a.pending.Len() >= flushThreshold {
		a.flushLocked()
		return
	}

	if a.timer == nil {
		a.timer = time.AfterFunc(flushInterval, a.flushAfterInterval)
	}
}

// Bytes returns a copy of everything accumulated so far, flushed or not.
func (a *outputAccumulator) Bytes() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]byte, a.total.Len())
	copy(out, a.total.Bytes())
	return out
}

// Close flushes any pending output and stops the timer. Writes after Close
// are dropped.
func (a *outputAccumulator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	a.flushLocked()
	a.closed = true
}

func (a *outputAccumulator) flushAfterInterval() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.flushLocked()
}

// flushLocked emits the pending chunk. The lock is held across the flush
// callback so chunks reach the sink in write order. Callers must hold mu.
func (a *outputAccumulator) flushLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}

	if a.pending.Len() == 0 {
		return
	}

	chunk := make([]byte, a.pending.Len())
	copy(chunk, a.pending.Bytes())
	a.pending.Reset()

	total := make([]byte, a.total.Len())
	copy(total, a.total.Bytes())

	a.flush(chunk, total)
}
