package s2s

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"discord-voice-agent/internal/agentbridge"
	"discord-voice-agent/internal/audio"
	"discord-voice-agent/internal/conversation"
	"discord-voice-agent/internal/engine"
	"discord-voice-agent/internal/tool"
)

const (
	geminiInputSampleRate  = 16000
	geminiOutputSampleRate = 24000

	DefaultSessionDurationMS = 10 * 60 * 1000
	DefaultRotationBufferMS  = 60 * 1000
	rotationHistoryTurns     = 10
)

// GeminiConfig configures the Gemini Live provider, including the
// make-before-break session rotation timer.
type GeminiConfig struct {
	APIKey              string
	Model               string
	Voice               string
	SystemPrompt        string
	SessionDurationMS   int
	RotationBufferMS    int
	History             *conversation.History
}

// geminiEngine implements engine.Engine over the Gemini Live API, rotating
// its WebSocket before the provider's hard session-length limit.
type geminiEngine struct {
	cfg    GeminiConfig
	bridge *agentbridge.Bridge
	events chan engine.Event

	mu         sync.Mutex
	conn       *websocket.Conn
	writeMu    sync.Mutex
	isRotating bool
	stopped    bool
	rotateTmr  *time.Timer
	stopOnce   sync.Once
}

func NewGemini(cfg GeminiConfig, bridge *agentbridge.Bridge) engine.Engine {
	if cfg.Model == "" {
		cfg.Model = "models/gemini-2.0-flash-live-001"
	}
	if cfg.SessionDurationMS <= 0 {
		cfg.SessionDurationMS = DefaultSessionDurationMS
	}
	if cfg.RotationBufferMS <= 0 {
		cfg.RotationBufferMS = DefaultRotationBufferMS
	}
	return &geminiEngine{cfg: cfg, bridge: bridge, events: make(chan engine.Event, 64)}
}

func (e *geminiEngine) Mode() engine.Mode           { return engine.ModeSpeechToSpeech }
func (e *geminiEngine) Events() <-chan engine.Event { return e.events }

func (e *geminiEngine) Start(ctx context.Context) error {
	conn, err := e.dialAndSetup(ctx, nil)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()

	go e.readLoop(conn)
	e.scheduleRotation()
	return nil
}

// dialAndSetup opens a new socket and sends the setup frame. history, if
// non-nil, overrides what's folded into the system instruction; nil (what
// rotation passes) reads the last rotationHistoryTurns turns live from
// cfg.History.
func (e *geminiEngine) dialAndSetup(ctx context.Context, history []conversation.Turn) (*websocket.Conn, error) {
	endpoint := "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent?key=" + e.cfg.APIKey
	dialer := websocket.Dialer{HandshakeTimeout: 20 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini live: dial failed: %w", err)
	}

	if history == nil && e.cfg.History != nil {
		history = e.cfg.History.Last(rotationHistoryTurns)
	}
	instruction := e.cfg.SystemPrompt
	if len(history) > 0 {
		instruction = instruction + "\n\nRecent conversation:\n" + renderHistory(history)
	}

	setup := map[string]any{
		"setup": map[string]any{
			"model": e.cfg.Model,
			"generationConfig": map[string]any{
				"responseModalities": []string{"AUDIO"},
				"speechConfig": map[string]any{
					"voiceConfig": map[string]any{
						"prebuiltVoiceConfig": map[string]any{"voiceName": e.cfg.Voice},
					},
				},
			},
			"systemInstruction": map[string]any{
				"parts": []map[string]any{{"text": instruction}},
			},
			"tools": geminiToolDeclarations(e.bridge),
		},
	}
	b, err := json.Marshal(setup)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		conn.Close()
		return nil, fmt.Errorf("gemini live: setup failed: %w", err)
	}
	return conn, nil
}

func renderHistory(turns []conversation.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(string(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (e *geminiEngine) scheduleRotation() {
	delay := time.Duration(e.cfg.SessionDurationMS-e.cfg.RotationBufferMS) * time.Millisecond
	e.mu.Lock()
	e.rotateTmr = time.AfterFunc(delay, e.rotate)
	e.mu.Unlock()
}

// rotate implements the make-before-break protocol: open the new socket
// and send setup before closing the old one, so a setup failure never
// costs the live connection.
func (e *geminiEngine) rotate() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	old := e.conn
	e.isRotating = true
	e.mu.Unlock()

	newConn, err := e.dialAndSetup(context.Background(), nil)
	if err != nil {
		e.emit(engine.Error{Err: fmt.Errorf("gemini live: rotation failed, staying on current socket: %w", err)})
		e.mu.Lock()
		e.isRotating = false
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.conn = newConn
	e.mu.Unlock()

	go e.readLoop(newConn)

	if old != nil {
		old.Close()
	}

	e.mu.Lock()
	e.isRotating = false
	e.mu.Unlock()

	e.scheduleRotation()
}

func (e *geminiEngine) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			e.mu.Lock()
			deliberate := e.isRotating || e.conn != conn || e.stopped
			e.mu.Unlock()
			if !deliberate {
				e.emit(engine.Error{Err: fmt.Errorf("gemini live: connection closed: %w", err)})
			}
			return
		}
		e.handleServerMessage(data)
	}
}

func (e *geminiEngine) handleServerMessage(data []byte) {
	var msg struct {
		ServerContent struct {
			ModelTurn struct {
				Parts []struct {
					Text       string `json:"text"`
					InlineData struct {
						MimeType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"modelTurn"`
			TurnComplete bool `json:"turnComplete"`
			Interrupted  bool `json:"interrupted"`
		} `json:"serverContent"`
		ToolCall struct {
			FunctionCalls []struct {
				ID   string         `json:"id"`
				Name string         `json:"name"`
				Args map[string]any `json:"args"`
			} `json:"functionCalls"`
		} `json:"toolCall"`
		InputTranscription struct {
			Text string `json:"text"`
		} `json:"inputTranscription"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	for _, part := range msg.ServerContent.ModelTurn.Parts {
		if part.InlineData.Data != "" {
			if pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data); err == nil {
				e.emit(engine.AudioOut{PCM: pcm, SampleRate: geminiOutputSampleRate})
			}
		}
		if part.Text != "" {
			e.emit(engine.AssistantTranscript{Text: part.Text, Final: false})
		}
	}
	if msg.InputTranscription.Text != "" {
		e.emit(engine.TranscriptIn{Text: msg.InputTranscription.Text, Final: true})
	}
	for _, call := range msg.ToolCall.FunctionCalls {
		e.emit(engine.ToolCallRequested{CallID: call.ID, Name: call.Name, Args: call.Args})
		e.executeAndRespond(call.ID, call.Name, call.Args)
	}
	if msg.ServerContent.Interrupted {
		e.emit(engine.Interrupted{})
	}
	if msg.ServerContent.TurnComplete {
		e.emit(engine.AssistantTranscript{Text: "", Final: true})
		e.emit(engine.TurnEnd{})
	}
}

func (e *geminiEngine) executeAndRespond(callID, name string, args map[string]any) {
	result := e.bridge.ExecuteTool(context.Background(), tool.Call{ID: callID, Name: name, Arguments: args})
	var decoded any
	_ = json.Unmarshal([]byte(result), &decoded)
	_ = e.send(map[string]any{
		"toolResponse": map[string]any{
			"functionResponses": []map[string]any{
				{"id": callID, "name": name, "response": decoded},
			},
		},
	})
}

// FeedAudio resamples 16kHz mono input (already native for Gemini) and
// forwards it as a realtime media chunk.
func (e *geminiEngine) FeedAudio(userID string, pcm []int16) {
	resampled := audio.Resample(pcm, audio.ProcessingSampleRate, geminiInputSampleRate)
	buf := audio.ToBytes(resampled)
	_ = e.send(map[string]any{
		"realtimeInput": map[string]any{
			"mediaChunks": []map[string]any{
				{"mimeType": "audio/pcm;rate=16000", "data": base64.StdEncoding.EncodeToString(buf)},
			},
		},
	})
}

// EndOfSpeech is a no-op: Gemini Live's own VAD determines turn
// boundaries from the continuous audio stream.
func (e *geminiEngine) EndOfSpeech(userID string) {}

func (e *geminiEngine) InjectText(text string) error {
	return e.send(map[string]any{
		"clientContent": map[string]any{
			"turns":        []map[string]any{{"role": "user", "parts": []map[string]any{{"text": text}}}},
			"turnComplete": true,
		},
	})
}

// Interrupt has no explicit provider-side cancel message in this wire
// protocol; the provider raises its own `interrupted` server event when
// it detects user speech over an active turn, so this only emits a local
// Interrupted event for the session's barge-in path.
func (e *geminiEngine) Interrupt() {
	e.emit(engine.Interrupted{})
}

func (e *geminiEngine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		conn := e.conn
		if e.rotateTmr != nil {
			e.rotateTmr.Stop()
		}
		e.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		close(e.events)
	})
}

func (e *geminiEngine) send(v any) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("gemini live: not connected")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (e *geminiEngine) emit(ev engine.Event) {
	defer func() { recover() }()
	e.events <- ev
}

// geminiToolDeclarations is the Gemini setup-frame tool shape. Mid-session
// tool updates are ignored by the provider, so tools are only ever sent
// here, at setup.
func geminiToolDeclarations(bridge *agentbridge.Bridge) []map[string]any {
	if bridge == nil {
		return nil
	}
	defs := bridge.Tools().Definitions()
	if len(defs) == 0 {
		return nil
	}
	decls := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		decls = append(decls, map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"parameters":  d.Parameters,
		})
	}
	return []map[string]any{{"functionDeclarations": decls}}
}
