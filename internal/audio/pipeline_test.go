package audio

import (
	"math"
	"testing"
)

func TestResampleIdentity(t *testing.T) {
	in := []int16{1, 2, 3, -4, 5, -6, 7}
	out := Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("byte-for-byte mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestResampleLengthLaw(t *testing.T) {
	cases := []struct{ from, to, n int }{
		{48000, 16000, 960},
		{16000, 48000, 320},
		{16000, 24000, 321},
		{24000, 16000, 480},
	}
	for _, c := range cases {
		in := make([]int16, c.n)
		for i := range in {
			in[i] = int16(i)
		}
		out := Resample(in, c.from, c.to)
		want := int(math.Round(float64(c.n) * float64(c.to) / float64(c.from)))
		if len(out) != want {
			t.Errorf("resample(%d->%d, n=%d): got len %d want %d", c.from, c.to, c.n, len(out), want)
		}
	}
}

func TestResampleUpsampleInterpolates(t *testing.T) {
	in := []int16{0, 100}
	out := Resample(in, 1, 2)
	if len(out) != 4 {
		t.Fatalf("expected len 4, got %d", len(out))
	}
	if out[0] != 0 {
		t.Errorf("first tap should equal first sample, got %d", out[0])
	}
}

func TestStereoMonoRoundTrip(t *testing.T) {
	stereo := []int16{10, 20, 30, 40}
	mono := StereoToMono(stereo)
	if len(mono) != 2 || mono[0] != 15 || mono[1] != 35 {
		t.Fatalf("unexpected mono downmix: %v", mono)
	}
	back := MonoToStereo(mono)
	if len(back) != 4 || back[0] != 15 || back[1] != 15 {
		t.Fatalf("unexpected mono->stereo: %v", back)
	}
}

func TestChunkToFramesExactBoundary(t *testing.T) {
	pcm := make([]byte, TransportFrameBytes*3)
	chunks := ChunkToFrames(pcm)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) != TransportFrameBytes {
			t.Errorf("chunk size %d != %d", len(c), TransportFrameBytes)
		}
	}
}
