package vad

import (
	"sync"

	"discord-voice-agent/internal/audio"
	silero "github.com/streamer45/silero-vad-go/speech"
)

// neuralEngine adapts the shared silero.Detector to the frame-at-a-time
// engine interface. Incoming frames rarely land on the model's native
// 512-sample (32ms) window, so samples are buffered and only flushed to
// the model a window at a time; the most recent window's verdict is what
// isSpeech reports until the next full window completes.
type neuralEngine struct {
	mu        sync.Mutex
	detector  *silero.Detector
	threshold float32
	buf       []float32
	lastVoice bool
}

func newNeuralEngine(d *silero.Detector, threshold float64) *neuralEngine {
	return &neuralEngine{detector: d, threshold: float32(threshold)}
}

func (e *neuralEngine) isSpeech(frame audio.Frame) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range frame.Samples {
		e.buf = append(e.buf, float32(s)/32768.0)
	}

	for len(e.buf) >= neuralWindowSamples {
		window := e.buf[:neuralWindowSamples]
		segments, err := e.detector.Detect(window)
		e.buf = e.buf[neuralWindowSamples:]
		if err != nil {
			return false, err
		}
		e.lastVoice = len(segments) > 0
	}
	return e.lastVoice, nil
}

func (e *neuralEngine) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detector != nil {
		e.detector.Reset()
	}
}
