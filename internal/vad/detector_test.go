package vad

import (
	"testing"

	"discord-voice-agent/internal/audio"
)

func toneFrame(amplitude int16, n int) audio.Frame {
	samples := make([]int16, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	return audio.Frame{Samples: samples, SampleRate: audio.ProcessingSampleRate, Channels: 1}
}

// With ModelPath unset, the neural model load always fails, so a detector
// configured for "neural" must still produce speech-start/speech-end from
// plain RMS once it falls back.
func TestDetectorDowngradesToRMSWhenModelUnavailable(t *testing.T) {
	ModelPath = ""
	d := NewDetector(Config{
		Engine:              "neural",
		Threshold:           0.3,
		SilenceDurationMS:   100,
		MinSpeechDurationMS: 0,
	})
	defer d.Close()

	loud := toneFrame(20000, 320) // 20ms @16kHz
	quiet := toneFrame(0, 320)

	var gotStart, gotEnd bool
	for i := 0; i < 3; i++ {
		for _, ev := range d.ProcessFrame(loud) {
			if ev.Kind == SpeechStart {
				gotStart = true
			}
		}
	}
	if !gotStart {
		t.Fatal("expected speech-start from loud tone")
	}

	// Silence for longer than SilenceDurationMS (100ms) at 20ms/frame.
	for i := 0; i < 10; i++ {
		for _, ev := range d.ProcessFrame(quiet) {
			if ev.Kind == SpeechEnd {
				gotEnd = true
			}
		}
	}
	if !gotEnd {
		t.Fatal("expected speech-end after contiguous silence")
	}
}

func TestDetectorIgnoresNonProcessingFormat(t *testing.T) {
	d := NewDetector(Config{Engine: "rms", Threshold: 0.3})
	defer d.Close()
	wrong := audio.Frame{Samples: make([]int16, 10), SampleRate: 48000, Channels: 2}
	if ev := d.ProcessFrame(wrong); ev != nil {
		t.Fatalf("expected no events for non-processing-format frame, got %v", ev)
	}
}
