// Package vad implements per-user voice activity detection: each user gets
// a lazily-created Detector backed by a process-wide singleton neural
// model (github.com/streamer45/silero-vad-go), falling back to a plain RMS
// classifier when the model fails to load or a detector hits a processing
// error.
package vad

import (
	"time"

	"discord-voice-agent/internal/audio"
)

// EventKind distinguishes the two VAD signals the rest of the core reacts to.
type EventKind int

const (
	SpeechStart EventKind = iota
	SpeechEnd
)

// Event is emitted by a Detector as it observes frames.
type Event struct {
	Kind EventKind
	At   time.Time
}

// Config controls how a Detector classifies frames and debounces start/end.
type Config struct {
	Engine              string // "neural" or "rms"
	Threshold           float64 // 0-1
	SilenceDurationMS   int
	MinSpeechDurationMS int
}

const (
	DefaultThreshold           = 0.5
	DefaultSilenceDurationMS   = 500
	DefaultMinSpeechDurationMS = 100

	// neuralWindowSamples is 32ms at 16kHz (the neural engine's native hop size).
	neuralWindowSamples = 512

	// rmsThresholdScale converts a 0-1 configured threshold into the int16
	// energy range the RMS engine compares against.
	rmsThresholdScale = 1600.0
)

func withDefaults(cfg Config) Config {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.SilenceDurationMS <= 0 {
		cfg.SilenceDurationMS = DefaultSilenceDurationMS
	}
	if cfg.MinSpeechDurationMS <= 0 {
		cfg.MinSpeechDurationMS = DefaultMinSpeechDurationMS
	}
	return cfg
}

// engine is the internal per-frame classifier both the neural and RMS
// implementations satisfy. It reports raw speech/non-speech per call;
// the Detector above it owns start/end debouncing.
type engine interface {
	isSpeech(frame audio.Frame) (bool, error)
	close()
}

// isProcessingFormat reports whether a frame is 16kHz mono, the only
// format detectors accept.
func isProcessingFormat(f audio.Frame) bool {
	return f.SampleRate == audio.ProcessingSampleRate && f.Channels == 1
}
