package vad

import (
	"errors"
	"sync"

	"discord-voice-agent/internal/logging"

	silero "github.com/streamer45/silero-vad-go/speech"
)

var log = logging.For("vad")

// sileroModel is the process-wide singleton neural model. Loading happens
// once, off the caller's goroutine, and its result (detector or error) is
// broadcast to every waiter; a failed load means every detector falls back
// to RMS silently rather than blocking startup.
type sileroModel struct {
	mu       sync.Mutex
	started  bool
	ready    chan struct{}
	detector *silero.Detector
	loadErr  error
}

var globalModel = &sileroModel{}

// ModelPath is set once at process startup from configuration.
var ModelPath string

func (m *sileroModel) ensureLoading() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.ready = make(chan struct{})
	go func() {
		defer close(m.ready)
		if ModelPath == "" {
			m.loadErr = errors.New("vad: no neural model path configured")
			return
		}
		d, err := silero.NewDetector(silero.DetectorConfig{
			ModelPath:            ModelPath,
			SampleRate:           16000,
			Threshold:            float32(DefaultThreshold),
			MinSilenceDurationMs: DefaultSilenceDurationMS,
		})
		if err != nil {
			log.WithError(err).Warn("neural VAD model load failed, detectors will fall back to RMS")
			m.loadErr = err
			return
		}
		m.detector = d
	}()
}

// acquire blocks (briefly, the first time) until the model is loaded or
// failed, then returns a ready neural engine or the load error.
func (m *sileroModel) acquire(threshold float64) (engine, error) {
	m.ensureLoading()
	<-m.ready
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return newNeuralEngine(m.detector, threshold), nil
}
