package config

import (
	"os"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("./does-not-exist.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "auto" {
		t.Fatalf("expected default mode auto, got %q", cfg.Mode)
	}
	if cfg.VAD.Threshold != 0.5 {
		t.Fatalf("expected default vad threshold 0.5, got %v", cfg.VAD.Threshold)
	}
	if cfg.RPC.Addr != ":8090" {
		t.Fatalf("expected default rpc addr :8090, got %q", cfg.RPC.Addr)
	}
	if cfg.WorkerPool.Size != 32 {
		t.Fatalf("expected default worker pool size 32, got %d", cfg.WorkerPool.Size)
	}
}

func TestLoadAppliesEnvFallbackForDiscordToken(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "env-token")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.BotToken != "env-token" {
		t.Fatalf("expected env fallback token, got %q", cfg.Discord.BotToken)
	}
}

func TestFirstNonEmptyPrefersFileOverEnv(t *testing.T) {
	if got := firstNonEmpty("file-value", "env-value"); got != "file-value" {
		t.Fatalf("expected file-value to win, got %q", got)
	}
	if got := firstNonEmpty("", "env-value"); got != "env-value" {
		t.Fatalf("expected fallback to env-value, got %q", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	yaml := "mode: pipeline\ndiscord:\n  botToken: file-token\nstt:\n  provider: deepgram\n"
	if _, err := f.WriteString(yaml); err != nil {
		t.Fatalf("WriteString: %v", err)
	}

	cfg, err := Load(f.Name())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "pipeline" {
		t.Fatalf("expected mode pipeline, got %q", cfg.Mode)
	}
	if cfg.Discord.BotToken != "file-token" {
		t.Fatalf("expected file-token, got %q", cfg.Discord.BotToken)
	}
	if cfg.STT.Provider != "deepgram" {
		t.Fatalf("expected stt provider deepgram, got %q", cfg.STT.Provider)
	}
}
