// Package audio implements the pure PCM transforms the rest of the core
// relies on: resampling, mono/stereo conversion, and Opus codec glue via
// gopkg.in/hraban/opus.v2. Pure, allocation-light functions with no I/O.
package audio

// Frame is 16-bit little-endian PCM carried alongside its sample rate and
// channel count.
type Frame struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

const (
	// ProcessingSampleRate is the rate VAD and STT consume: 16 kHz mono.
	ProcessingSampleRate = 16000
	ProcessingChannels   = 1

	// TransportSampleRate is the rate the Discord transport expects: 48 kHz stereo.
	TransportSampleRate = 48000
	TransportChannels   = 2

	// FrameDurationMS is the nominal per-frame duration used throughout the
	// pipeline (one Opus frame at 48 kHz stereo).
	FrameDurationMS = 20

	// TransportFrameBytes is 20ms of 48kHz stereo PCM16: 48000*0.02*2*2.
	TransportFrameBytes = 3840
)

// ToInt16 reinterprets a little-endian PCM16 byte buffer as samples.
func ToInt16(buf []byte) []int16 {
	out := make([]int16, len(buf)/2)
	for i := range out {
		out[i] = int16(uint16(buf[2*i]) | uint16(buf[2*i+1])<<8)
	}
	return out
}

// ToBytes reinterprets PCM16 samples as a little-endian byte buffer.
func ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}
