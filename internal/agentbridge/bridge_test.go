package agentbridge

import (
	"context"
	"testing"

	"discord-voice-agent/internal/tool"
)

type fakeDispatcher struct {
	gotDC    DispatchContext
	chunks   []string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, dc DispatchContext, onChunk func(string)) (string, error) {
	f.gotDC = dc
	full := ""
	for _, c := range f.chunks {
		onChunk(c)
		full += c
	}
	return full, nil
}

func TestStreamResponseBuildsDispatchContext(t *testing.T) {
	disp := &fakeDispatcher{chunks: []string{"It is noon. ", "Let me know if you need more."}}
	b := New(disp, tool.NewRegistry())

	var received []string
	full, err := b.StreamResponse(context.Background(), "U1", "Alice", nil, "What time is it?",
		func(s string) { received = append(received, s) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != "It is noon. Let me know if you need more." {
		t.Fatalf("unexpected accumulated reply: %q", full)
	}
	if len(received) != 2 {
		t.Fatalf("expected 2 chunks delivered, got %d", len(received))
	}
	if disp.gotDC.SessionKey != "voice:U1" {
		t.Fatalf("expected session key voice:U1, got %q", disp.gotDC.SessionKey)
	}
	if disp.gotDC.Surface != "discord-voice" {
		t.Fatalf("expected surface discord-voice, got %q", disp.gotDC.Surface)
	}
}
