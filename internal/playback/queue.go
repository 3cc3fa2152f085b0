// Package playback implements a strict-FIFO queue of synthesized TTS
// streams: entries play back in enqueue order even when their synthesis
// overlaps, so the first sentence of a reply can start playing while later
// sentences are still being generated. Each stream is a channel of PCM
// chunks, the same shape the TTS providers' streaming methods return.
package playback

import (
	"sync"

	"discord-voice-agent/internal/echo"
)

// Sender is the narrow outbound interface the queue drives: write one PCM
// chunk at the given sample rate, or stop immediately (barge-in).
type Sender interface {
	Write(chunk []byte, sampleRate int) error
	Stop()
	// Idle reports whether the sender has finished draining everything
	// written to it since the last Stop/drain.
	Idle() bool
}

// Stream is one in-flight TTS synthesis: a channel of PCM chunks at
// SampleRate, closed by the producer when synthesis ends, plus a way to
// cancel it early.
type Stream struct {
	Chunks     <-chan []byte
	Err        <-chan error
	Cancel     func()
	SampleRate int
}

// entry is the queue's bookkeeping for one enqueued stream.
type entry struct {
	stream  *Stream
	buf     [][]byte
	ready   bool // producer has closed Chunks
	errored bool
	done    chan struct{}
}

// Queue is a per-session FIFO of TTS streams. Not safe for concurrent use
// from multiple goroutines calling mutating methods at once beyond the
// producer/consumer pattern documented on each method.
type Queue struct {
	mu       sync.Mutex
	sender   Sender
	echo     *echo.Suppressor
	entries  []*entry
	current  *entry
	draining bool
	onError  func(err error)
}

func NewQueue(sender Sender, suppressor *echo.Suppressor) *Queue {
	return &Queue{sender: sender, echo: suppressor}
}

// OnError installs a callback invoked when the current entry errors after
// becoming current (the error is surfaced; the entry is then dropped and
// the next is promoted).
func (q *Queue) OnError(fn func(err error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onError = fn
}

// Enqueue adds a stream to the tail of the queue and starts draining its
// chunks into an internal buffer immediately, regardless of whether it is
// current yet — this is what allows later sentences to keep synthesizing
// while an earlier one plays.
func (q *Queue) Enqueue(s *Stream) {
	e := &entry{stream: s, done: make(chan struct{})}

	q.mu.Lock()
	q.entries = append(q.entries, e)
	shouldPromote := q.current == nil && !q.draining
	q.mu.Unlock()

	go q.drainProducer(e)

	if shouldPromote {
		q.promoteNext()
	}
}

// drainProducer copies chunks from the stream's channel into the entry's
// buffer, forwarding to the sender immediately if this entry is already
// current.
func (q *Queue) drainProducer(e *entry) {
	for {
		select {
		case chunk, ok := <-e.stream.Chunks:
			if !ok {
				q.mu.Lock()
				e.ready = true
				isCurrent := q.current == e
				q.mu.Unlock()
				if isCurrent {
					q.onSenderIdleCheck(e)
				}
				close(e.done)
				return
			}
			q.mu.Lock()
			isCurrent := q.current == e
			dropped := q.draining
			if !isCurrent {
				e.buf = append(e.buf, chunk)
			}
			q.mu.Unlock()
			if dropped {
				continue
			}
			if isCurrent {
				q.emit(e, chunk)
			}
		case err, ok := <-e.stream.Err:
			if !ok {
				continue
			}
			q.handleStreamError(e, err)
			return
		}
	}
}

// emit registers the chunk with the echo suppressor and writes it to the
// sender.
func (q *Queue) emit(e *entry, chunk []byte) {
	if q.echo != nil {
		q.echo.RegisterOutbound(bytesToInt16(chunk))
	}
	_ = q.sender.Write(chunk, e.stream.SampleRate)
}

func (q *Queue) handleStreamError(e *entry, err error) {
	q.mu.Lock()
	isCurrent := q.current == e
	e.errored = true
	q.mu.Unlock()

	if !isCurrent {
		// Errored before becoming current: removed silently.
		q.removeEntry(e)
		return
	}

	if q.onError != nil {
		q.onError(err)
	}
	q.promoteNext()
}

// promoteNext advances the current entry to the next pending one, feeding
// it any chunks already buffered while it waited.
func (q *Queue) promoteNext() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	// Drop the previous current (if any) from the head.
	if len(q.entries) > 0 && q.entries[0] == q.current {
		q.entries = q.entries[1:]
	}
	if len(q.entries) == 0 {
		q.current = nil
		q.mu.Unlock()
		return
	}
	next := q.entries[0]
	q.current = next
	buffered := next.buf
	next.buf = nil
	ready := next.ready
	q.mu.Unlock()

	for _, chunk := range buffered {
		q.emit(next, chunk)
	}
	if ready {
		q.onSenderIdleCheck(next)
	}
}

// onSenderIdleCheck is invoked when an entry's producer has finished; if
// the sender has already drained everything written, the next entry is
// promoted. Otherwise the entry stays current until NotifySenderIdle is
// called.
func (q *Queue) onSenderIdleCheck(e *entry) {
	q.mu.Lock()
	isCurrent := q.current == e
	q.mu.Unlock()
	if !isCurrent {
		return
	}
	if q.sender.Idle() {
		q.promoteNext()
	}
}

// NotifySenderIdle reports that the sender has gone idle; if the current
// entry has finished producing, the next entry is promoted. Nothing in this
// module calls it: the pipeline engine's sender always reports idle.
func (q *Queue) NotifySenderIdle() {
	q.mu.Lock()
	cur := q.current
	q.mu.Unlock()
	if cur == nil {
		return
	}
	q.mu.Lock()
	ready := cur.ready
	q.mu.Unlock()
	if ready {
		q.promoteNext()
	}
}

func (q *Queue) removeEntry(e *entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, en := range q.entries {
		if en == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
}

// Clear implements barge-in: cancel every stream, stop the sender, clear
// bot-speaking, and prevent the idle callback from promoting a new entry
// until Clear completes.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.draining = true
	entries := q.entries
	q.entries = nil
	q.current = nil
	q.mu.Unlock()

	for _, e := range entries {
		if e.stream.Cancel != nil {
			e.stream.Cancel()
		}
	}
	q.sender.Stop()
	if q.echo != nil {
		q.echo.SetSpeaking(false)
	}

	q.mu.Lock()
	q.draining = false
	q.mu.Unlock()
}

// IsPlaying reports whether there is a current entry.
func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}
