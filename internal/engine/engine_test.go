package engine

import "testing"

func TestResolveModeAutoPicksS2SWhenCredentialsPresent(t *testing.T) {
	if got := ResolveMode(ConfigAuto, true, nil); got != ModeSpeechToSpeech {
		t.Fatalf("expected speech-to-speech, got %v", got)
	}
	if got := ResolveMode(ConfigAuto, false, nil); got != ModePipeline {
		t.Fatalf("expected pipeline, got %v", got)
	}
}

func TestResolveModeSpeechToSpeechDowngradesWithWarning(t *testing.T) {
	var warned string
	got := ResolveMode(ConfigSpeechToSpeech, false, func(msg string) { warned = msg })
	if got != ModePipeline {
		t.Fatalf("expected downgrade to pipeline, got %v", got)
	}
	if warned == "" {
		t.Fatal("expected a downgrade warning")
	}
}

func TestResolveModeSpeechToSpeechKeepsModeWhenCredentialsPresent(t *testing.T) {
	called := false
	got := ResolveMode(ConfigSpeechToSpeech, true, func(string) { called = true })
	if got != ModeSpeechToSpeech {
		t.Fatalf("expected speech-to-speech, got %v", got)
	}
	if called {
		t.Fatal("must not warn when credentials are present")
	}
}

func TestResolveModePipelineNeverUpgrades(t *testing.T) {
	if got := ResolveMode(ConfigPipeline, true, nil); got != ModePipeline {
		t.Fatalf("pipeline must never upgrade, got %v", got)
	}
}
