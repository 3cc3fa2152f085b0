package manager

import (
	"context"
	"testing"

	"discord-voice-agent/internal/config"
	"discord-voice-agent/internal/conversation"
)

func newTestManager() *Manager {
	return New(Config{S2S: config.S2SConfig{Provider: "openai"}})
}

func TestAllowedSetEmptyMeansEveryone(t *testing.T) {
	if allowedSet(nil) != nil {
		t.Fatal("expected nil set for no allowed users")
	}
	set := allowedSet([]string{"a", "b"})
	if !set["a"] || !set["b"] || set["c"] {
		t.Fatalf("unexpected allowed set: %v", set)
	}
}

func TestS2SCredentialsPresentDefaultsToOpenAI(t *testing.T) {
	m := newTestManager()
	if m.s2sCredentialsPresent() {
		t.Fatal("expected no credentials present with empty config")
	}
	m.cfg.S2S.OpenAIRealtime.APIKey = "sk-test"
	if !m.s2sCredentialsPresent() {
		t.Fatal("expected credentials present once api key is set")
	}
}

func TestS2SCredentialsPresentGemini(t *testing.T) {
	m := newTestManager()
	m.cfg.S2S.Provider = "gemini"
	if m.s2sCredentialsPresent() {
		t.Fatal("expected no credentials present")
	}
	m.cfg.S2S.GeminiLive.APIKey = "gm-test"
	if !m.s2sCredentialsPresent() {
		t.Fatal("expected credentials present once gemini key is set")
	}
}

func TestStatusForUnknownGuildIsInactive(t *testing.T) {
	m := newTestManager()
	st := m.Status("nonexistent-guild")
	if st.Active {
		t.Fatal("expected inactive status for a guild with no session")
	}
}

func TestSpeakWithoutSessionReturnsError(t *testing.T) {
	m := newTestManager()
	if err := m.Speak("nonexistent-guild", "hello"); err == nil {
		t.Fatal("expected error speaking into a guild with no session")
	}
}

func TestLeaveWithoutSessionReturnsError(t *testing.T) {
	m := newTestManager()
	if err := m.Leave("nonexistent-guild"); err == nil {
		t.Fatal("expected error leaving a guild with no session")
	}
}

func TestActiveGuildsEmptyByDefault(t *testing.T) {
	m := newTestManager()
	if len(m.ActiveGuilds()) != 0 {
		t.Fatalf("expected no active guilds, got %v", m.ActiveGuilds())
	}
}

func TestVoiceToolRequiresGuildID(t *testing.T) {
	m := newTestManager()
	if _, err := m.handleVoiceTool(context.Background(), map[string]any{"action": "status"}); err == nil {
		t.Fatal("expected error when guildId is missing")
	}
}

func TestVoiceToolStatusForUnknownGuild(t *testing.T) {
	m := newTestManager()
	result, err := m.handleVoiceTool(context.Background(), map[string]any{"action": "status", "guildId": "g1"})
	if err != nil {
		t.Fatalf("handleVoiceTool: %v", err)
	}
	got, ok := result.(map[string]any)
	if !ok || got["active"] != false {
		t.Fatalf("expected inactive status, got %v", result)
	}
}

func TestVoiceToolJoinRequiresChannelID(t *testing.T) {
	m := newTestManager()
	if _, err := m.handleVoiceTool(context.Background(), map[string]any{"action": "join", "guildId": "g1"}); err == nil {
		t.Fatal("expected error when channelId is missing for join")
	}
}

func TestVoiceToolSpeakRequiresText(t *testing.T) {
	m := newTestManager()
	if _, err := m.handleVoiceTool(context.Background(), map[string]any{"action": "speak", "guildId": "g1"}); err == nil {
		t.Fatal("expected error when text is missing for speak")
	}
}

func TestVoiceToolUnknownAction(t *testing.T) {
	m := newTestManager()
	if _, err := m.handleVoiceTool(context.Background(), map[string]any{"action": "dance", "guildId": "g1"}); err == nil {
		t.Fatal("expected error for an unrecognized action")
	}
}

func TestRenderTurnsForHandoff(t *testing.T) {
	if got := renderTurnsForHandoff(nil); got == "" {
		t.Fatal("expected a non-empty placeholder for no turns")
	}
	turns := []conversation.Turn{{Role: conversation.RoleUser, Content: "what's the weather"}}
	got := renderTurnsForHandoff(turns)
	if got == "" {
		t.Fatal("expected non-empty summary")
	}
}
