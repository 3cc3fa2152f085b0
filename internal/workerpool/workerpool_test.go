package workerpool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewDefaultsSizeWhenNonPositive(t *testing.T) {
	p, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Release()
	if p.pool.Cap() != 32 {
		t.Fatalf("expected default capacity 32, got %d", p.pool.Cap())
	}
}

func TestDoReturnsFunctionResult(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Release()

	got, err := Do(p, context.Background(), func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestDoPropagatesFunctionError(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Release()

	wantErr := errors.New("boom")
	_, err = Do(p, context.Background(), func() (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped boom error, got %v", err)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})

	cancel()
	_, err = Do(p, ctx, func() (int, error) {
		<-release
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)
}

func TestSubmitRunsInlineWhenPoolCannotAccept(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Release()
	p.Release()

	done := make(chan struct{})
	p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected inline fallback to run fn synchronously")
	}
}
