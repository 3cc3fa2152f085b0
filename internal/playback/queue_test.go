package playback

import (
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu      sync.Mutex
	written [][]byte
	stopped bool
}

func (f *fakeSender) Write(chunk []byte, sampleRate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, chunk)
	return nil
}

func (f *fakeSender) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

// Idle always reports true: these tests care about FIFO ordering and
// barge-in atomicity, not about real sender drain timing.
func (f *fakeSender) Idle() bool { return true }

func (f *fakeSender) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

func newStream() (*Stream, chan []byte, chan error) {
	chunks := make(chan []byte, 16)
	errc := make(chan error, 1)
	return &Stream{Chunks: chunks, Err: errc, Cancel: func() {}}, chunks, errc
}

func TestQueueOrderingRegardlessOfInterleaving(t *testing.T) {
	sender := &fakeSender{}
	q := NewQueue(sender, nil)

	s1, c1, _ := newStream()
	s2, c2, _ := newStream()

	// s2 finishes synthesizing first, but was enqueued second.
	c2 <- []byte{0x02, 0x02}
	close(c2)

	q.Enqueue(s1)
	q.Enqueue(s2)

	time.Sleep(20 * time.Millisecond) // let s2's producer buffer its chunk

	c1 <- []byte{0x01, 0x01}
	close(c1)

	time.Sleep(30 * time.Millisecond) // let s1 play and promote s2

	got := sender.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks written, got %d: %v", len(got), got)
	}
	if got[0][0] != 0x01 || got[1][0] != 0x02 {
		t.Fatalf("expected enqueue order s1,s2; got %v", got)
	}
}

// After Clear, no chunk from a previously enqueued stream may reach the sender.
func TestQueueClearStopsFurtherDelivery(t *testing.T) {
	sender := &fakeSender{}
	q := NewQueue(sender, nil)

	s1, c1, _ := newStream()
	q.Enqueue(s1)
	c1 <- []byte{0xAA}
	time.Sleep(10 * time.Millisecond)

	q.Clear()
	if q.IsPlaying() {
		t.Fatal("IsPlaying must be false after Clear")
	}

	before := len(sender.snapshot())
	c1 <- []byte{0xBB} // sent after clear; must never reach the sender
	time.Sleep(10 * time.Millisecond)
	after := len(sender.snapshot())

	if after != before {
		t.Fatalf("no chunks should be written after Clear: before=%d after=%d", before, after)
	}
	if !sender.stopped {
		t.Fatal("sender.Stop() must be called on Clear")
	}
}
