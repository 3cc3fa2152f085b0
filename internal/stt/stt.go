// Package stt defines the capability contract shared by speech-to-text
// providers, mirroring the small-interface shape of the tts package.
package stt

import (
	"context"

	"discord-voice-agent/internal/workerpool"
)

// Transcript is one partial or final recognition result.
type Transcript struct {
	Text  string
	Final bool
}

type Provider interface {
	Name() string
	SupportsStreaming() bool
}

// BatchTranscriber accepts the full end-of-speech PCM buffer and returns
// one final transcript.
type BatchTranscriber interface {
	Provider
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error)
}

// StreamTranscriber accepts frames progressively and emits partial/final
// transcripts as they become available.
type StreamTranscriber interface {
	Provider
	// Start begins a streaming recognition session; Feed pushes audio;
	// Results delivers partial/final transcripts; Stop ends the session
	// (a final transcript, if any, is delivered before Results closes).
	Start(ctx context.Context, sampleRate int) (feed func(pcm []int16), results <-chan Transcript, stop func(), err error)
}

// PooledBatchTranscriber runs an underlying BatchTranscriber's call through
// a bounded-concurrency pool, so many guilds' simultaneous end-of-speech
// moments don't each spawn an unbounded outbound HTTP call.
type PooledBatchTranscriber struct {
	inner BatchTranscriber
	pool  *workerpool.Pool
}

func NewPooledBatchTranscriber(inner BatchTranscriber, p *workerpool.Pool) *PooledBatchTranscriber {
	return &PooledBatchTranscriber{inner: inner, pool: p}
}

func (p *PooledBatchTranscriber) Name() string            { return p.inner.Name() }
func (p *PooledBatchTranscriber) SupportsStreaming() bool { return false }

func (p *PooledBatchTranscriber) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	return workerpool.Do(p.pool, ctx, func() (string, error) {
		return p.inner.Transcribe(ctx, pcm, sampleRate)
	})
}
