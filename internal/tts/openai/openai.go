// Package openai implements the OpenAI TTS REST provider: POST text, get
// back an mp3 stream, decode it to PCM16 chunks for the playback queue.
//
// The request shape (model/voice/response_format/speed) and the pooled
// HTTP client both follow the same pattern used for the Whisper batch STT
// client. The mp3 response is decoded to transport-agnostic PCM16LE chunks
// with github.com/gopxl/beep's mp3 decoder rather than chunked directly
// into a transport's native frame size, since the playback queue expects
// plain PCM.
package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"discord-voice-agent/internal/httpclient"
	"discord-voice-agent/internal/tts"

	"github.com/gopxl/beep/mp3"
)

// Provider is the OpenAI text-to-speech REST client.
type Provider struct {
	client *httpclient.Client
	Model  string
	Voice  string
	Format string
	Speed  float64
}

type Config struct {
	APIKey string
	APIURL string
	Model  string
	Voice  string
	Format string
	Speed  float64
}

func New(cfg Config) *Provider {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.openai.com/v1/audio/speech"
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	return &Provider{
		client: httpclient.NewClient(httpclient.Config{AuthToken: cfg.APIKey}),
		Model:  cfg.Model,
		Voice:  cfg.Voice,
		Format: cfg.Format,
		Speed:  cfg.Speed,
	}
}

func (p *Provider) Name() string            { return "openai" }
func (p *Provider) SupportsStreaming() bool { return true }

type requestBody struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// SynthesizeStream posts the request, then decodes the mp3 response body
// into PCM16 chunks on a background goroutine, closing the chunk channel
// when decoding finishes. fetch reads the full response body before
// decoding starts (httpclient.DoRequestRaw has no streaming body mode),
// so the first chunk reaches the playback queue once the mp3 has fully
// downloaded and decoding of it has begun — not before the download
// completes — while the caller still gets chunks progressively rather
// than waiting for the entire decode to finish.
func (p *Provider) SynthesizeStream(ctx context.Context, text string) (<-chan tts.Chunk, <-chan error, func(), error) {
	ctx, cancel := contextWithCancel(ctx)

	body, err := p.fetch(ctx, text)
	if err != nil {
		cancel()
		return nil, nil, func() {}, err
	}

	chunks := make(chan tts.Chunk, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer body.Close()

		streamer, format, err := mp3.Decode(body)
		if err != nil {
			select {
			case errs <- fmt.Errorf("openai tts: decode mp3: %w", err):
			default:
			}
			return
		}
		defer streamer.Close()

		const samplesPerChunk = 960 // 20ms at 48kHz mono-equivalent buffer size
		buf := make([][2]float64, samplesPerChunk)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, ok := streamer.Stream(buf)
			if n > 0 {
				chunks <- tts.Chunk{PCM: encodePCM16(buf[:n]), SampleRate: format.SampleRate.N(1)}
			}
			if !ok {
				return
			}
		}
	}()

	return chunks, errs, cancel, nil
}

func (p *Provider) fetch(ctx context.Context, text string) (io.ReadCloser, error) {
	req := requestBody{
		Model:          p.Model,
		Input:          tts.Truncate(text),
		Voice:          p.Voice,
		ResponseFormat: p.Format,
		Speed:          p.Speed,
	}
	raw, err := p.client.DoRequestRaw(ctx, httpclient.RequestOptions{
		Method: "POST",
		Path:   "https://api.openai.com/v1/audio/speech",
		Body:   req,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: request failed: %w", err)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

// encodePCM16 converts beep's [-1,1] float64 stereo samples to mono
// little-endian PCM16 by averaging the two channels.
func encodePCM16(buf [][2]float64) []byte {
	out := make([]byte, len(buf)*2)
	for i, s := range buf {
		mono := (s[0] + s[1]) / 2
		v := int16(mono * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func contextWithCancel(ctx context.Context) (context.Context, func()) {
	return context.WithCancel(ctx)
}
