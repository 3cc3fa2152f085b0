// Package openai implements the OpenAI Whisper batch STT provider: encode
// the end-of-speech PCM buffer to a 16kHz mono WAV file and POST it as
// multipart form data, decoding the {text} JSON response.
//
// WAV encoding uses github.com/go-audio/wav + github.com/go-audio/audio:
// Whisper's upload endpoint wants a self-describing WAV container, not
// pre-chunked Opus frames, so the buffer is wrapped rather than streamed.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"discord-voice-agent/internal/httpclient"

	waveaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeSeekerBuffer adapts a bytes.Buffer to io.WriteSeeker: wav.NewEncoder
// requires Seek to backfill the RIFF/data chunk sizes once the full sample
// count is known, which bytes.Buffer alone doesn't support.
type writeSeekerBuffer struct {
	*bytes.Buffer
	pos int64
}

func newWriteSeekerBuffer() *writeSeekerBuffer {
	return &writeSeekerBuffer{Buffer: bytes.NewBuffer(nil)}
}

func (w *writeSeekerBuffer) Write(p []byte) (int, error) {
	if w.pos == int64(w.Buffer.Len()) {
		n, err := w.Buffer.Write(p)
		w.pos += int64(n)
		return n, err
	}

	data := make([]byte, w.Buffer.Len())
	copy(data, w.Buffer.Bytes())

	end := w.pos + int64(len(p))
	if end > int64(len(data)) {
		data = append(data, make([]byte, end-int64(len(data)))...)
	}
	copy(data[w.pos:], p)

	w.Buffer.Reset()
	w.Buffer.Write(data)
	w.pos += int64(len(p))
	return len(p), nil
}

func (w *writeSeekerBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = w.pos + offset
	case io.SeekEnd:
		newPos = int64(w.Buffer.Len()) + offset
	default:
		return 0, fmt.Errorf("writeSeekerBuffer: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("writeSeekerBuffer: negative seek position")
	}
	if newPos > int64(w.Buffer.Len()) {
		w.Buffer.Write(make([]byte, newPos-int64(w.Buffer.Len())))
	}
	w.pos = newPos
	return w.pos, nil
}

// Provider uses the shared pooled transport directly rather than
// httpclient.Client: multipart file uploads build their own request body
// and so bypass Client's JSON request/retry helper.
type Provider struct {
	apiKey string
	Model  string
}

type Config struct {
	APIKey string
	Model  string
}

func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	return &Provider{apiKey: cfg.APIKey, Model: cfg.Model}
}

func (p *Provider) Name() string            { return "openai" }
func (p *Provider) SupportsStreaming() bool { return false }

type whisperResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the PCM buffer as a WAV file and returns the
// recognized text.
func (p *Provider) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	wavBytes, err := encodeWAV(pcm, sampleRate)
	if err != nil {
		return "", fmt.Errorf("openai stt: encode wav: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("openai stt: create form file: %w", err)
	}
	if _, err := part.Write(wavBytes); err != nil {
		return "", fmt.Errorf("openai stt: write form file: %w", err)
	}
	if err := writer.WriteField("model", p.Model); err != nil {
		return "", fmt.Errorf("openai stt: write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("openai stt: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("openai stt: new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := httpclient.Shared().Do(req)
	if err != nil {
		return "", fmt.Errorf("openai stt: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai stt: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai stt: status %d: %s", resp.StatusCode, string(respBytes))
	}

	var parsed whisperResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("openai stt: decode response: %w", err)
	}
	return parsed.Text, nil
}

func encodeWAV(pcm []int16, sampleRate int) ([]byte, error) {
	buf := newWriteSeekerBuffer()
	enc := wav.NewEncoder(buf, sampleRate, 16, 1, 1)

	intBuf := &waveaudio.IntBuffer{
		Format: &waveaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   make([]int, len(pcm)),
	}
	for i, s := range pcm {
		intBuf.Data[i] = int(s)
	}

	if err := enc.Write(intBuf); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Buffer.Bytes(), nil
}
