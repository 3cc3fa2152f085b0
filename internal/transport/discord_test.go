package transport

import (
	"testing"

	"discord-voice-agent/internal/audio"
)

func newTestConn(t *testing.T) *Conn {
	t.Helper()
	enc, err := audio.NewEncoder()
	if err != nil {
		t.Fatalf("audio.NewEncoder: %v", err)
	}
	return &Conn{encoder: enc}
}

func TestIdleTrueWithNoPendingFrames(t *testing.T) {
	c := newTestConn(t)
	if !c.Idle() {
		t.Fatal("expected Idle() to be true with nothing queued")
	}
}

func TestWriteQueuesFramesAndClearsIdle(t *testing.T) {
	c := newTestConn(t)

	// 20ms of silence at 24kHz mono, matching a typical TTS chunk rate.
	samples := make([]int16, 24000/50)
	chunk := audio.ToBytes(samples)

	if err := c.Write(chunk, 24000); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if c.Idle() {
		t.Fatal("expected Idle() to be false after Write queued frames")
	}
}

func TestStopClearsQueuedFrames(t *testing.T) {
	c := newTestConn(t)

	samples := make([]int16, 24000/50)
	chunk := audio.ToBytes(samples)
	if err := c.Write(chunk, 24000); err != nil {
		t.Fatalf("Write: %v", err)
	}

	c.Stop()
	if !c.Idle() {
		t.Fatal("expected Idle() to be true after Stop")
	}
}

func TestWriteDefaultsZeroSampleRate(t *testing.T) {
	c := newTestConn(t)
	samples := make([]int16, audio.TransportSampleRate/50)
	chunk := audio.ToBytes(samples)

	if err := c.Write(chunk, 0); err != nil {
		t.Fatalf("Write with zero sample rate: %v", err)
	}
	if c.Idle() {
		t.Fatal("expected frames to be queued even with a zero sample rate argument")
	}
}
