// Package tool implements a small name -> (definition, handler) registry:
// definitions are enumerable for speech-to-speech provider setup frames,
// and execution by name never panics or returns a raw error to the caller.
// Parameter schemas use mcp-go's ToolInputSchema type so the same schema
// dialect serves both the pipeline agent runtime and S2S provider tool
// declarations.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// Definition describes one callable tool.
type Definition struct {
	Name        string
	Description string
	Parameters  mcp.ToolInputSchema
}

// Call is one provider-issued invocation.
type Call struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Handler executes a tool call and returns a JSON-serializable result, or
// an error which the registry turns into {error: string}.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type registered struct {
	def     Definition
	handler Handler
}

// Registry is a session-scoped (or process-wide, if shared) name->tool map.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register adds or replaces a tool. Unique by name.
func (r *Registry) Register(def Definition, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = registered{def: def, handler: handler}
}

// Definitions returns all registered tool definitions, sorted by name for
// deterministic S2S setup frames.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// errorResult is the shape every failed tool execution returns: unknown
// tools and handler failures are both encoded this way, never raised as
// a Go error.
type errorResult struct {
	Error string `json:"error"`
}

// Execute runs a tool by name, returning a JSON-encoded result. It never
// returns a Go error to the caller: unknown tools and handler failures are
// both encoded as {"error": "..."}.
func (r *Registry) Execute(ctx context.Context, call Call) (out string) {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		return encodeOrFallback(errorResult{Error: fmt.Sprintf("unknown tool: %s", call.Name)})
	}

	defer func() {
		if p := recover(); p != nil {
			out = encodeOrFallback(errorResult{Error: fmt.Sprintf("tool %s panicked: %v", call.Name, p)})
		}
	}()
	result, err := t.handler(ctx, call.Arguments)
	if err != nil {
		return encodeOrFallback(errorResult{Error: err.Error()})
	}
	return encodeOrFallback(result)
}

func encodeOrFallback(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"failed to encode tool result"}`
	}
	return string(b)
}
