// Package manager owns the process-wide guild id -> voice session map: it
// joins/leaves voice channels, resolves which engine family a session runs
// (pipeline or speech-to-speech), constructs that engine's STT/TTS/provider
// dependencies from configuration, and exposes a "discord_voice" tool so the
// agent itself can drive voice sessions from ordinary text turns.
package manager

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	cmap "github.com/orcaman/concurrent-map/v2"

	"discord-voice-agent/internal/agentbridge"
	"discord-voice-agent/internal/config"
	"discord-voice-agent/internal/conversation"
	"discord-voice-agent/internal/engine"
	"discord-voice-agent/internal/engine/pipeline"
	"discord-voice-agent/internal/engine/s2s"
	"discord-voice-agent/internal/historymirror"
	"discord-voice-agent/internal/logging"
	"discord-voice-agent/internal/session"
	"discord-voice-agent/internal/stt"
	"discord-voice-agent/internal/stt/deepgram"
	"discord-voice-agent/internal/stt/openai"
	"discord-voice-agent/internal/tool"
	"discord-voice-agent/internal/transport"
	"discord-voice-agent/internal/tts"
	"discord-voice-agent/internal/tts/edgeoffline"
	ttsopenai "discord-voice-agent/internal/tts/openai"
	"discord-voice-agent/internal/vad"
	"discord-voice-agent/internal/workerpool"
)

var log = logging.For("manager")

// Config wires the manager to the process's shared Discord session, the
// host agent runtime's dispatcher, and resolved configuration.
type Config struct {
	Discord    *discordgo.Session
	Dispatcher agentbridge.Dispatcher
	Pool       *workerpool.Pool
	STT        config.STTConfig
	TTS        config.TTSConfig
	S2S        config.S2SConfig
	VAD        config.VADConfig
	Behavior   config.BehaviorConfig
	Mode       string
	// DisplayName resolves a Discord user id to a display name for
	// dispatch context and conversation history; falls back to the raw id.
	DisplayName func(userID string) string
}

// guildSession bundles everything the manager tracks for one active guild.
type guildSession struct {
	sess    *session.Session
	eng     engine.Engine
	conn    *transport.Conn
	history *conversation.History
	mode    engine.Mode
}

// Manager owns every guild's voice session and the shared tool registry the
// agent uses to drive voice sessions from text.
type Manager struct {
	cfg      Config
	sessions cmap.ConcurrentMap[string, *guildSession]
	registry *tool.Registry
	bridge   *agentbridge.Bridge
	mirror   *historymirror.Mirror // nil unless behavior.historyMirror.redis.enabled
}

func New(cfg Config) *Manager {
	if cfg.DisplayName == nil {
		cfg.DisplayName = func(userID string) string { return userID }
	}
	m := &Manager{
		cfg:      cfg,
		sessions: cmap.New[*guildSession](),
		registry: tool.NewRegistry(),
	}
	m.bridge = agentbridge.New(cfg.Dispatcher, m.registry)
	m.registerVoiceTool()

	if cfg.Behavior.HistoryMirror.Redis.Enabled {
		mirror, err := historymirror.New(historymirror.Config{
			Addr:     cfg.Behavior.HistoryMirror.Redis.Addr,
			Password: cfg.Behavior.HistoryMirror.Redis.Password,
			MaxLen:   cfg.Behavior.HistoryMirror.Redis.MaxLen,
		})
		if err != nil {
			log.Warnf("history mirror disabled: %v", err)
		} else {
			m.mirror = mirror
		}
	}
	return m
}

// Join starts a voice session in channelID of guildID, stopping any
// pre-existing session for that guild first. The new session is stored in
// the map before Start is called so two concurrent joins for the same
// guild collide deterministically on the map write rather than racing
// independent starts.
func (m *Manager) Join(guildID, channelID string) (engine.Mode, error) {
	if existing, ok := m.sessions.Get(guildID); ok {
		existing.sess.Stop()
		existing.conn.Disconnect()
		m.sessions.Remove(guildID)
	}

	conn, err := transport.Join(m.cfg.Discord, guildID, channelID)
	if err != nil {
		return "", fmt.Errorf("manager: join voice channel: %w", err)
	}

	history := conversation.NewHistory(m.cfg.Behavior.MaxConversationTurns)
	if m.mirror != nil {
		history.OnAppend(m.mirror.ForGuild(guildID))
	}
	mode := engine.ResolveMode(engine.ConfiguredMode(m.cfg.Mode), m.s2sCredentialsPresent(), func(msg string) {
		log.WithField("guild", guildID).Warn(msg)
	})

	eng, err := m.buildEngine(mode, history)
	if err != nil {
		conn.Disconnect()
		return "", fmt.Errorf("manager: build engine: %w", err)
	}

	sess := session.New(session.Config{
		GuildID:         guildID,
		Receiver:        conn,
		Sender:          conn,
		Engine:          eng,
		VAD:             vad.Config{Engine: m.cfg.VAD.Engine, Threshold: m.cfg.VAD.Threshold, SilenceDurationMS: m.cfg.VAD.SilenceDurationMS, MinSpeechDurationMS: m.cfg.VAD.MinSpeechDurationMS},
		BargeIn:         m.cfg.Behavior.BargeIn,
		EchoSuppression: m.cfg.Behavior.EchoSuppression,
		AllowedUsers:    allowedSet(m.cfg.Behavior.AllowedUsers),
		DisplayName:     m.cfg.DisplayName,
	})

	gs := &guildSession{sess: sess, eng: eng, conn: conn, history: history, mode: mode}
	m.sessions.Set(guildID, gs)

	if err := sess.Start(context.Background()); err != nil {
		m.sessions.Remove(guildID)
		conn.Disconnect()
		return "", fmt.Errorf("manager: start session: %w", err)
	}
	return mode, nil
}

// Leave stops guildID's session, snapshotting its conversation history
// first. For speech-to-speech sessions only, it also dispatches a
// session-end transcript to the agent bridge so the agent's own memory
// picks up what was discussed, since the pipeline family already records
// every turn through the bridge as it happens.
func (m *Manager) Leave(guildID string) error {
	gs, ok := m.sessions.Get(guildID)
	if !ok {
		return fmt.Errorf("manager: no active session for guild %s", guildID)
	}
	m.sessions.Remove(guildID)

	turns := gs.history.Snapshot()
	mode := gs.mode

	gs.sess.Stop()
	gs.conn.Disconnect()

	if mode == engine.ModeSpeechToSpeech && len(turns) > 0 {
		go m.dispatchSessionEnd(guildID, turns)
	}
	return nil
}

// StopAll best-effort leaves every active guild, then releases the shared
// history mirror connection if one is configured. It is called once, at
// process shutdown.
func (m *Manager) StopAll() {
	for _, guildID := range m.sessions.Keys() {
		if err := m.Leave(guildID); err != nil {
			log.WithField("guild", guildID).Warnf("stopAll: leave failed: %v", err)
		}
	}
	if m.mirror != nil {
		if err := m.mirror.Close(); err != nil {
			log.Warnf("closing history mirror: %v", err)
		}
	}
}

// Speak injects assistant speech into guildID's session without a
// preceding user utterance (the management RPC's "voice.speak" and the
// discord_voice tool's "speak" action both funnel through here).
func (m *Manager) Speak(guildID, text string) error {
	gs, ok := m.sessions.Get(guildID)
	if !ok {
		return fmt.Errorf("manager: no active session for guild %s", guildID)
	}
	return gs.eng.InjectText(text)
}

// Status reports whether a session is active for guildID and which engine
// mode it's running, used by the management RPC's "voice.status" route.
type Status struct {
	Active bool
	State  string
	Mode   string
}

func (m *Manager) Status(guildID string) Status {
	gs, ok := m.sessions.Get(guildID)
	if !ok {
		return Status{Active: false}
	}
	return Status{Active: true, State: string(gs.sess.State()), Mode: string(gs.mode)}
}

// ActiveGuilds lists every guild with a running session.
func (m *Manager) ActiveGuilds() []string {
	return m.sessions.Keys()
}

// EngineMode returns the configured mode (auto|pipeline|speech-to-speech),
// distinct from Status's per-guild resolved engine.Mode.
func (m *Manager) EngineMode() string {
	return m.cfg.Mode
}

// Tools exposes the shared tool registry so a host agent runtime can
// enumerate and advertise it, in addition to the engines that already
// consult it directly through the bridge.
func (m *Manager) Tools() *tool.Registry {
	return m.registry
}

func (m *Manager) dispatchSessionEnd(guildID string, turns []conversation.Turn) {
	summary := renderTurnsForHandoff(turns)
	ctx := context.Background()
	if _, err := m.bridge.StreamResponse(ctx, "system", "system", turns, summary, func(string) {}); err != nil {
		log.WithField("guild", guildID).Warnf("session-end dispatch failed: %v", err)
	}
}

func renderTurnsForHandoff(turns []conversation.Turn) string {
	if len(turns) == 0 {
		return "(voice session ended with no recorded turns)"
	}
	return "(voice session ended; final turn: " + turns[len(turns)-1].Content + ")"
}

func (m *Manager) s2sCredentialsPresent() bool {
	switch m.cfg.S2S.Provider {
	case "gemini":
		return m.cfg.S2S.GeminiLive.APIKey != ""
	default:
		return m.cfg.S2S.OpenAIRealtime.APIKey != ""
	}
}

func (m *Manager) buildEngine(mode engine.Mode, history *conversation.History) (engine.Engine, error) {
	if mode == engine.ModeSpeechToSpeech {
		switch m.cfg.S2S.Provider {
		case "gemini":
			return s2s.NewGemini(s2s.GeminiConfig{
				APIKey:            m.cfg.S2S.GeminiLive.APIKey,
				Model:             m.cfg.S2S.GeminiLive.Model,
				Voice:             m.cfg.S2S.GeminiLive.Voice,
				SystemPrompt:      m.cfg.Behavior.SystemPrompt,
				SessionDurationMS: m.cfg.S2S.GeminiLive.SessionDurationMS,
				RotationBufferMS:  m.cfg.S2S.GeminiLive.RotationBufferMS,
				History:           history,
			}, m.bridge), nil
		default:
			return s2s.NewOpenAI(s2s.OpenAIConfig{
				APIKey:       m.cfg.S2S.OpenAIRealtime.APIKey,
				Model:        m.cfg.S2S.OpenAIRealtime.Model,
				Voice:        m.cfg.S2S.OpenAIRealtime.Voice,
				SystemPrompt: m.cfg.Behavior.SystemPrompt,
			}, m.bridge), nil
		}
	}

	primarySTT, err := m.buildSTT(m.cfg.STT.Provider)
	if err != nil {
		return nil, err
	}
	var fallbackSTT stt.Provider
	if m.cfg.STT.Fallback != "" {
		fallbackSTT, err = m.buildSTT(m.cfg.STT.Fallback)
		if err != nil {
			return nil, err
		}
	}

	primaryTTS, err := m.buildTTS(m.cfg.TTS.Provider)
	if err != nil {
		return nil, err
	}
	var fallbackTTS tts.Provider
	if m.cfg.TTS.Fallback != "" {
		fallbackTTS, err = m.buildTTS(m.cfg.TTS.Fallback)
		if err != nil {
			return nil, err
		}
	}

	return pipeline.New(pipeline.Config{
		PrimarySTT:  primarySTT,
		FallbackSTT: fallbackSTT,
		PrimaryTTS:  primaryTTS,
		FallbackTTS: fallbackTTS,
		Bridge:      m.bridge,
		History:     history,
		DisplayName: m.cfg.DisplayName,
	}), nil
}

// buildSTT constructs a named STT provider, wrapping batch providers in
// the shared worker pool so many guilds' simultaneous end-of-speech
// moments don't each spawn an unbounded outbound HTTP call; the streaming
// deepgram provider has no batch call to bound this way.
func (m *Manager) buildSTT(name string) (stt.Provider, error) {
	switch name {
	case "deepgram":
		return deepgram.New(deepgram.Config{
			APIKey:        m.cfg.STT.DeepgramAPIKey,
			EndpointingMS: m.cfg.STT.EndpointingMS,
			Model:         m.cfg.STT.DeepgramModel,
		}), nil
	case "openai", "":
		p := openai.New(openai.Config{APIKey: m.cfg.STT.OpenAIAPIKey, Model: m.cfg.STT.OpenAIModel})
		return stt.NewPooledBatchTranscriber(p, m.cfg.Pool), nil
	default:
		return nil, fmt.Errorf("manager: unknown stt provider %q", name)
	}
}

// buildTTS constructs a named TTS provider. Only genuine batch providers
// (edge-offline) are wrapped in the shared worker pool, for the same
// reason buildSTT pools the batch OpenAI STT call; the OpenAI TTS provider
// is a tts.Streamer, not a tts.Synthesizer, so it's passed through
// unwrapped and reaches pipeline.startSynthesis's streaming path directly
// instead of being forced through the batch pool.
func (m *Manager) buildTTS(name string) (tts.Provider, error) {
	switch name {
	case "edge-offline", "edgeoffline":
		p := edgeoffline.New(edgeoffline.Config{Voice: m.cfg.TTS.EdgeVoice})
		return tts.NewPooledSynthesizer(p, m.cfg.Pool), nil
	case "openai", "":
		return ttsopenai.New(ttsopenai.Config{
			APIKey: m.cfg.TTS.OpenAIAPIKey,
			Model:  m.cfg.TTS.OpenAIModel,
			Voice:  m.cfg.TTS.OpenAIVoice,
			Speed:  m.cfg.TTS.OpenAISpeed,
		}), nil
	default:
		return nil, fmt.Errorf("manager: unknown tts provider %q", name)
	}
}

func allowedSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
