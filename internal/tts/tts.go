// Package tts defines the capability contract shared by every text-to-speech
// provider: one Go type per provider, each declaring which of batch
// synthesis or streaming synthesis it supports so callers can type-assert
// to the capability they need at runtime instead of every provider
// implementing both unconditionally.
package tts

import (
	"context"

	"discord-voice-agent/internal/workerpool"
)

// MaxChars caps how much text is submitted to a provider in one call;
// longer sentences are truncated before synthesis.
const MaxChars = 4000

// Chunk is one piece of synthesized PCM audio at the provider's native
// sample rate (mono).
type Chunk struct {
	PCM        []byte
	SampleRate int
}

// Provider is the capability set every TTS backend implements. Batch and
// streaming are both optional: callers type-assert to Streamer for the
// streaming path and fall back to Synthesizer otherwise.
type Provider interface {
	Name() string
	SupportsStreaming() bool
}

// Synthesizer is the batch capability: wait for the whole utterance.
type Synthesizer interface {
	Provider
	Synthesize(ctx context.Context, text string) ([]Chunk, error)
}

// Streamer is the streaming capability: chunks arrive as they are
// generated, a closed channel signals completion, and Cancel aborts
// in-flight synthesis (used by barge-in and queue clear).
type Streamer interface {
	Provider
	SynthesizeStream(ctx context.Context, text string) (chunks <-chan Chunk, errs <-chan error, cancel func(), err error)
}

// Truncate applies MaxChars.
func Truncate(text string) string {
	if len(text) <= MaxChars {
		return text
	}
	return text[:MaxChars]
}

// PooledSynthesizer runs an underlying Synthesizer's call through a
// bounded-concurrency pool, so many guilds' simultaneous TTS requests
// against the same offline/batch backend don't each spawn an unbounded
// goroutine or sub-process.
type PooledSynthesizer struct {
	inner Synthesizer
	pool  *workerpool.Pool
}

func NewPooledSynthesizer(inner Synthesizer, p *workerpool.Pool) *PooledSynthesizer {
	return &PooledSynthesizer{inner: inner, pool: p}
}

func (p *PooledSynthesizer) Name() string            { return p.inner.Name() }
func (p *PooledSynthesizer) SupportsStreaming() bool { return false }

func (p *PooledSynthesizer) Synthesize(ctx context.Context, text string) ([]Chunk, error) {
	return workerpool.Do(p.pool, ctx, func() ([]Chunk, error) {
		return p.inner.Synthesize(ctx, text)
	})
}
