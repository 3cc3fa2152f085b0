package audio

import (
	"fmt"

	opus "gopkg.in/hraban/opus.v2"
)

// Resample performs linear interpolation between adjacent input samples.
// Voice-band audio tolerates this; it avoids pulling in a native FFT or
// polyphase-filter dependency for a 2-4x rate change. Identity if from==to.
//
// Output length is round(inLen * to / from); taps past the last input
// sample repeat it rather than reading out of range.
func Resample(samples []int16, from, to int) []int16 {
	if from == to || len(samples) == 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	outLen := int(roundDiv(int64(len(samples))*int64(to), int64(from)))
	out := make([]int16, outLen)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := srcPos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

func roundDiv(num, den int64) int64 {
	if den == 0 {
		return 0
	}
	half := den / 2
	if (num < 0) != (den < 0) {
		return -((-num + half) / den)
	}
	return (num + half) / den
}

// StereoToMono averages interleaved stereo samples down to mono.
func StereoToMono(samples []int16) []int16 {
	out := make([]int16, len(samples)/2)
	for i := range out {
		l := int32(samples[2*i])
		r := int32(samples[2*i+1])
		out[i] = int16((l + r) / 2)
	}
	return out
}

// MonoToStereo duplicates each mono sample into an interleaved L/R pair.
func MonoToStereo(samples []int16) []int16 {
	out := make([]int16, len(samples)*2)
	for i, s := range samples {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}

// DecodeForProcessing decodes an Opus packet (as received from the
// transport, 48kHz stereo) into 16kHz mono PCM ready for VAD/STT.
func DecodeForProcessing(dec *opus.Decoder, opusPacket []byte) (Frame, error) {
	pcm := make([]int16, TransportFrameSamplesPerChannel(TransportSampleRate)*TransportChannels)
	n, err := dec.Decode(opusPacket, pcm)
	if err != nil {
		return Frame{}, fmt.Errorf("opus decode: %w", err)
	}
	stereo := pcm[:n*TransportChannels]
	mono := StereoToMono(stereo)
	resampled := Resample(mono, TransportSampleRate, ProcessingSampleRate)
	return Frame{Samples: resampled, SampleRate: ProcessingSampleRate, Channels: 1}, nil
}

// ToTransportFormat converts an arbitrary-rate mono or stereo PCM buffer
// into 48kHz stereo PCM ready to be Opus-encoded and written outbound.
func ToTransportFormat(f Frame) Frame {
	samples := f.Samples
	if f.Channels == 1 {
		samples = MonoToStereo(Resample(samples, f.SampleRate, TransportSampleRate))
	} else {
		// de-interleave, resample each channel, re-interleave
		left := make([]int16, len(samples)/2)
		right := make([]int16, len(samples)/2)
		for i := range left {
			left[i] = samples[2*i]
			right[i] = samples[2*i+1]
		}
		left = Resample(left, f.SampleRate, TransportSampleRate)
		right = Resample(right, f.SampleRate, TransportSampleRate)
		samples = make([]int16, len(left)*2)
		for i := range left {
			samples[2*i] = left[i]
			samples[2*i+1] = right[i]
		}
	}
	return Frame{Samples: samples, SampleRate: TransportSampleRate, Channels: TransportChannels}
}

// EncodeForTransport Opus-encodes 48kHz stereo PCM into one outbound frame.
func EncodeForTransport(enc *opus.Encoder, f Frame) ([]byte, error) {
	buf := make([]byte, 4000)
	n, err := enc.Encode(f.Samples, buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return buf[:n], nil
}

// TransportFrameSamplesPerChannel returns samples-per-channel for a 20ms
// frame at the given sample rate.
func TransportFrameSamplesPerChannel(sampleRate int) int {
	return sampleRate * FrameDurationMS / 1000
}

// NewDecoder constructs an Opus decoder for the transport format.
func NewDecoder() (*opus.Decoder, error) {
	return opus.NewDecoder(TransportSampleRate, TransportChannels)
}

// NewEncoder constructs an Opus encoder for the transport format.
func NewEncoder() (*opus.Encoder, error) {
	return opus.NewEncoder(TransportSampleRate, TransportChannels, opus.AppAudio)
}

// ChunkToFrames splits a raw 48kHz stereo PCM buffer into TransportFrameBytes
// chunks (one 20ms Opus frame's worth of PCM at a time).
func ChunkToFrames(pcm []byte) [][]byte {
	var chunks [][]byte
	for off := 0; off < len(pcm); off += TransportFrameBytes {
		end := off + TransportFrameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk := make([]byte, TransportFrameBytes)
		copy(chunk, pcm[off:end])
		chunks = append(chunks, chunk)
	}
	return chunks
}
