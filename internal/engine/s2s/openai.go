// Package s2s implements the speech-to-speech engine family: a
// bidirectional WebSocket to a provider that handles STT, reasoning, and
// TTS natively, sharing the same engine.Engine contract as the pipeline
// family. Two providers are implemented: OpenAI Realtime and Gemini Live,
// the latter adding a make-before-break session rotation protocol to hide
// its server-imposed session length limit.
package s2s

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"discord-voice-agent/internal/agentbridge"
	"discord-voice-agent/internal/audio"
	"discord-voice-agent/internal/engine"
	"discord-voice-agent/internal/tool"
)

const (
	openAISampleRate         = 24000
	openAIServerVADSilenceMS = 800
)

// OpenAIConfig configures the OpenAI Realtime provider.
type OpenAIConfig struct {
	APIKey       string
	Model        string // e.g. "gpt-4o-realtime-preview"
	Voice        string
	SystemPrompt string
}

// openAIEngine implements engine.Engine over the OpenAI Realtime API.
type openAIEngine struct {
	cfg    OpenAIConfig
	bridge *agentbridge.Bridge

	conn      *websocket.Conn
	writeMu   sync.Mutex
	events    chan engine.Event
	closeOnce sync.Once

	mu             sync.Mutex
	responseActive bool
}

func NewOpenAI(cfg OpenAIConfig, bridge *agentbridge.Bridge) engine.Engine {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-realtime-preview"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	return &openAIEngine{cfg: cfg, bridge: bridge, events: make(chan engine.Event, 64)}
}

func (e *openAIEngine) Mode() engine.Mode           { return engine.ModeSpeechToSpeech }
func (e *openAIEngine) Events() <-chan engine.Event { return e.events }

func (e *openAIEngine) Start(ctx context.Context) error {
	endpoint := fmt.Sprintf("wss://api.openai.com/v1/realtime?model=%s", e.cfg.Model)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: 20 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("openai realtime: dial failed: %w", err)
	}
	e.conn = conn

	if err := e.send(map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"turn_detection":      map[string]any{"type": "server_vad", "silence_duration_ms": openAIServerVADSilenceMS},
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"voice":               e.cfg.Voice,
			"instructions":        e.cfg.SystemPrompt,
			"tools":               toolDeclarations(e.bridge),
		},
	}); err != nil {
		conn.Close()
		return err
	}

	go e.readLoop()
	return nil
}

func (e *openAIEngine) readLoop() {
	defer close(e.events)
	defer e.conn.Close()
	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			return
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		e.handleServerEvent(env.Type, data)
	}
}

func (e *openAIEngine) handleServerEvent(eventType string, data []byte) {
	switch eventType {
	case "response.created":
		e.mu.Lock()
		e.responseActive = true
		e.mu.Unlock()

	case "response.audio.delta":
		var payload struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(payload.Delta)
		if err != nil {
			return
		}
		e.emit(engine.AudioOut{PCM: pcm, SampleRate: openAISampleRate})

	case "response.audio_transcript.delta":
		var payload struct {
			Delta string `json:"delta"`
		}
		_ = json.Unmarshal(data, &payload)
		e.emit(engine.AssistantTranscript{Text: payload.Delta, Final: false})

	case "conversation.item.input_audio_transcription.completed":
		var payload struct {
			Transcript string `json:"transcript"`
		}
		_ = json.Unmarshal(data, &payload)
		e.emit(engine.TranscriptIn{Text: payload.Transcript, Final: true})

	case "response.function_call_arguments.done":
		var payload struct {
			CallID    string `json:"call_id"`
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		}
		_ = json.Unmarshal(data, &payload)
		var args map[string]any
		_ = json.Unmarshal([]byte(payload.Arguments), &args)
		e.emit(engine.ToolCallRequested{CallID: payload.CallID, Name: payload.Name, Args: args})
		e.executeAndRespond(payload.CallID, payload.Name, args)

	case "input_audio_buffer.speech_started":
		e.emit(engine.Interrupted{})

	case "response.done":
		e.mu.Lock()
		e.responseActive = false
		e.mu.Unlock()
		e.emit(engine.AssistantTranscript{Text: "", Final: true})
		e.emit(engine.TurnEnd{})

	case "error":
		var payload struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(data, &payload)
		e.emit(engine.Error{Err: fmt.Errorf("openai realtime: %s", payload.Error.Message)})
	}
}

func (e *openAIEngine) executeAndRespond(callID, name string, args map[string]any) {
	result := e.bridge.ExecuteTool(context.Background(), tool.Call{ID: callID, Name: name, Arguments: args})
	_ = e.send(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  result,
		},
	})
	_ = e.send(map[string]any{"type": "response.create"})
}

// FeedAudio resamples 16kHz mono input to the provider's 24kHz mono wire
// format and appends it to the input buffer.
func (e *openAIEngine) FeedAudio(userID string, pcm []int16) {
	resampled := audio.Resample(pcm, audio.ProcessingSampleRate, openAISampleRate)
	buf := audio.ToBytes(resampled)
	_ = e.send(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(buf),
	})
}

// EndOfSpeech commits the input buffer and requests a response. Server-side
// VAD normally triggers this itself; this path exists for callers (or
// engines) that manage end-of-speech detection independently.
func (e *openAIEngine) EndOfSpeech(userID string) {
	_ = e.send(map[string]any{"type": "input_audio_buffer.commit"})
	_ = e.send(map[string]any{"type": "response.create"})
}

func (e *openAIEngine) InjectText(text string) error {
	if err := e.send(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}); err != nil {
		return err
	}
	return e.send(map[string]any{"type": "response.create"})
}

// Interrupt cancels the in-flight response only if one is tracked, per the
// provider's own "response.cancel is invalid with no active response" rule.
func (e *openAIEngine) Interrupt() {
	e.mu.Lock()
	active := e.responseActive
	e.mu.Unlock()
	if !active {
		return
	}
	_ = e.send(map[string]any{"type": "response.cancel"})
}

func (e *openAIEngine) Stop() {
	e.closeOnce.Do(func() {
		if e.conn != nil {
			e.writeMu.Lock()
			_ = e.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			e.writeMu.Unlock()
			e.conn.Close()
		}
	})
}

func (e *openAIEngine) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.conn.WriteMessage(websocket.TextMessage, b)
}

func (e *openAIEngine) emit(ev engine.Event) {
	defer func() { recover() }()
	e.events <- ev
}

// toolDeclarations converts the registry's tool definitions into the
// provider's function-tool declaration shape.
func toolDeclarations(bridge *agentbridge.Bridge) []map[string]any {
	if bridge == nil {
		return nil
	}
	defs := bridge.Tools().Definitions()
	out := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		out = append(out, map[string]any{
			"type":        "function",
			"name":        d.Name,
			"description": d.Description,
			"parameters":  d.Parameters,
		})
	}
	return out
}
