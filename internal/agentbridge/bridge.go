// Package agentbridge ties a session to the host agent runtime: it builds
// a per-turn dispatch context (session key, surface tag, bounded history)
// and forwards it to a buffered-block dispatcher, streaming delivered text
// blocks to a caller-supplied callback while accumulating the full reply
// for history. It also holds the tool registry both engine families
// consult for tool-call execution.
package agentbridge

import (
	"context"
	"fmt"

	"discord-voice-agent/internal/conversation"
	"discord-voice-agent/internal/tool"
)

// DispatchContext is what the host runtime needs to route one user turn.
type DispatchContext struct {
	UserID      string
	DisplayName string
	SessionKey  string // "voice:<userId>"
	Surface     string // "discord-voice"
	History     []conversation.Turn
	Text        string
}

// Dispatcher is the host agent runtime's buffered-block dispatch contract:
// given a context, stream text blocks to onChunk as they become available
// and return the full accumulated reply once the turn completes.
type Dispatcher interface {
	Dispatch(ctx context.Context, dc DispatchContext, onChunk func(text string)) (full string, err error)
}

// Bridge ties a Dispatcher to a tool Registry for one session.
type Bridge struct {
	dispatcher Dispatcher
	registry   *tool.Registry
	surface    string
}

func New(dispatcher Dispatcher, registry *tool.Registry) *Bridge {
	return &Bridge{dispatcher: dispatcher, registry: registry, surface: "discord-voice"}
}

// StreamResponse builds the dispatch context for one user turn and forwards
// each delivered block to onChunk, returning the full accumulated reply for
// history.
func (b *Bridge) StreamResponse(ctx context.Context, userID, displayName string, history []conversation.Turn, text string, onChunk func(string)) (string, error) {
	dc := DispatchContext{
		UserID:      userID,
		DisplayName: displayName,
		SessionKey:  fmt.Sprintf("voice:%s", userID),
		Surface:     b.surface,
		History:     history,
		Text:        text,
	}
	return b.dispatcher.Dispatch(ctx, dc, onChunk)
}

// Tools exposes the bridge's tool registry for the S2S engine's setup frame
// and the pipeline agent runtime's function-calling declarations.
func (b *Bridge) Tools() *tool.Registry {
	return b.registry
}

// ExecuteTool runs a provider-issued tool call through the registry.
func (b *Bridge) ExecuteTool(ctx context.Context, call tool.Call) string {
	return b.registry.Execute(ctx, call)
}
