package stt

import (
	"context"
	"errors"
	"testing"

	"discord-voice-agent/internal/workerpool"
)

type fakeBatchTranscriber struct {
	name string
	text string
	err  error
}

func (f *fakeBatchTranscriber) Name() string            { return f.name }
func (f *fakeBatchTranscriber) SupportsStreaming() bool { return false }
func (f *fakeBatchTranscriber) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	return f.text, f.err
}

func TestPooledBatchTranscriberDelegatesNameAndStreaming(t *testing.T) {
	pool, err := workerpool.New(2)
	if err != nil {
		t.Fatalf("workerpool.New: %v", err)
	}
	defer pool.Release()

	inner := &fakeBatchTranscriber{name: "fake-stt"}
	p := NewPooledBatchTranscriber(inner, pool)

	if p.Name() != "fake-stt" {
		t.Fatalf("expected delegated name, got %q", p.Name())
	}
	if p.SupportsStreaming() {
		t.Fatal("expected PooledBatchTranscriber to report no streaming support")
	}
}

func TestPooledBatchTranscriberReturnsInnerResult(t *testing.T) {
	pool, err := workerpool.New(2)
	if err != nil {
		t.Fatalf("workerpool.New: %v", err)
	}
	defer pool.Release()

	inner := &fakeBatchTranscriber{name: "fake-stt", text: "hello world"}
	p := NewPooledBatchTranscriber(inner, pool)

	got, err := p.Transcribe(context.Background(), []int16{1, 2, 3}, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", got)
	}
}

func TestPooledBatchTranscriberPropagatesInnerError(t *testing.T) {
	pool, err := workerpool.New(2)
	if err != nil {
		t.Fatalf("workerpool.New: %v", err)
	}
	defer pool.Release()

	wantErr := errors.New("provider failed")
	inner := &fakeBatchTranscriber{name: "fake-stt", err: wantErr}
	p := NewPooledBatchTranscriber(inner, pool)

	_, err = p.Transcribe(context.Background(), nil, 16000)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}
