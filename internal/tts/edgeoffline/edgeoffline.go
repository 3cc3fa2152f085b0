// Package edgeoffline implements the free/offline TTS fallback provider
// using github.com/difyz9/edge-tts-go (a Go port of Microsoft Edge's
// public text-to-speech voices), selected when the primary or fallback TTS
// provider is configured as "edge-offline"; an empty provider selects
// OpenAI, not this one.
//
// Synthesis goes through the same mp3-decode-to-PCM path as the hosted
// OpenAI provider, since edge-tts-go also returns mp3; unlike a
// WebSocket-bridge implementation this talks to the library directly, so
// there is no persistent connection to guard with a send mutex — each
// call opens and tears down its own connection.
package edgeoffline

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"discord-voice-agent/internal/tts"

	edgetts "github.com/difyz9/edge-tts-go/pkg/communicate"
	"github.com/gopxl/beep/mp3"
)

// Provider is the edge-tts-go-backed fallback TTS.
type Provider struct {
	Voice string
	Rate  string
	Pitch string
}

type Config struct {
	Voice string
	Rate  string
	Pitch string
}

func New(cfg Config) *Provider {
	if cfg.Voice == "" {
		cfg.Voice = "en-US-AriaNeural"
	}
	return &Provider{Voice: cfg.Voice, Rate: cfg.Rate, Pitch: cfg.Pitch}
}

func (p *Provider) Name() string            { return "edge-offline" }
func (p *Provider) SupportsStreaming() bool { return false }

// Synthesize requests the whole utterance as mp3 bytes from edge-tts-go
// and decodes it to one PCM16 chunk, since the underlying library returns
// a single buffered result rather than a progressive stream.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]tts.Chunk, error) {
	comm := edgetts.NewCommunicate(tts.Truncate(text), p.Voice)
	if p.Rate != "" {
		comm.Rate = p.Rate
	}
	if p.Pitch != "" {
		comm.Pitch = p.Pitch
	}

	mp3Bytes, err := comm.SynthesizeToBytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("edge-offline tts: synthesize failed: %w", err)
	}

	streamer, format, err := mp3.Decode(nopCloser{bytes.NewReader(mp3Bytes)})
	if err != nil {
		return nil, fmt.Errorf("edge-offline tts: decode mp3: %w", err)
	}
	defer streamer.Close()

	buf := make([][2]float64, 960)
	var pcm []byte
	for {
		n, ok := streamer.Stream(buf)
		if n > 0 {
			pcm = append(pcm, encodePCM16(buf[:n])...)
		}
		if !ok {
			break
		}
	}

	return []tts.Chunk{{PCM: pcm, SampleRate: format.SampleRate.N(1)}}, nil
}

func encodePCM16(buf [][2]float64) []byte {
	out := make([]byte, len(buf)*2)
	for i, s := range buf {
		mono := (s[0] + s[1]) / 2
		v := int16(mono * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }
