// Package engine defines the abstract contract shared by the pipeline and
// speech-to-speech engine families: a tagged-variant event stream plus a
// small set of trait-style operations (start, feed audio, end of speech,
// inject text, interrupt, stop), with a factory that resolves which family
// to construct from configuration and available credentials.
//
// Events are a discriminator-method tagged variant (AudioOut,
// TranscriptIn, ToolCallRequested, Error, ...) rather than a string-topic
// publish/subscribe bus, so subscribers are wired once at construction and
// event types are exhaustively checkable by the compiler.
package engine

import "context"

// Event is the tagged-variant engine event. Each concrete type below
// implements eventType() as its discriminator.
type Event interface {
	eventType() string
}

// AudioOut carries synthesized audio at the engine's native sample rate.
type AudioOut struct {
	PCM        []byte
	SampleRate int
}

func (AudioOut) eventType() string { return "audio-out" }

// TranscriptIn carries a user utterance transcript (pipeline: STT; S2S:
// provider input-transcription).
type TranscriptIn struct {
	UserID string
	Text   string
	Final  bool
}

func (TranscriptIn) eventType() string { return "transcript-in" }

// AssistantTranscript carries the assistant's spoken reply text as it is
// produced (pipeline: agent tokens; S2S: provider transcript deltas).
type AssistantTranscript struct {
	Text  string
	Final bool
}

func (AssistantTranscript) eventType() string { return "assistant-transcript" }

// ToolCallRequested signals the engine needs a tool executed.
type ToolCallRequested struct {
	CallID string
	Name   string
	Args   map[string]any
}

func (ToolCallRequested) eventType() string { return "tool-call" }

// Interrupted signals the provider (S2S) or engine acknowledged a barge-in.
type Interrupted struct{}

func (Interrupted) eventType() string { return "interrupted" }

// TurnEnd signals the assistant's turn is complete; the session drains the
// playback queue to idle after this.
type TurnEnd struct{}

func (TurnEnd) eventType() string { return "turn-end" }

// Error signals a session-fatal engine error.
type Error struct {
	Err error
}

func (Error) eventType() string { return "error" }

// Engine is the shared contract. Implementations: internal/engine/pipeline,
// internal/engine/s2s.
type Engine interface {
	// Start begins the engine's session (opening provider sockets, etc).
	Start(ctx context.Context) error
	// FeedAudio forwards one frame of user PCM (16kHz mono).
	FeedAudio(userID string, pcm []int16)
	// EndOfSpeech signals VAD speech-end for a user; triggers STT/response.
	EndOfSpeech(userID string)
	// InjectText lets the management RPC ("voice.speak") or a tool inject
	// assistant speech without a user utterance.
	InjectText(text string) error
	// Interrupt is idempotent and synchronous: suppresses pending
	// emissions and cancels in-flight provider work.
	Interrupt()
	// Stop tears the engine down; no further events after it returns.
	Stop()
	// Events returns the engine's event stream.
	Events() <-chan Event
	// Mode reports which family this engine implements.
	Mode() Mode
}

// Mode is the resolved conversational engine family.
type Mode string

const (
	ModePipeline       Mode = "pipeline"
	ModeSpeechToSpeech Mode = "speech-to-speech"
)

// ConfiguredMode is the user-facing configuration value (mode:
// auto|pipeline|speech-to-speech).
type ConfiguredMode string

const (
	ConfigAuto           ConfiguredMode = "auto"
	ConfigPipeline       ConfiguredMode = "pipeline"
	ConfigSpeechToSpeech ConfiguredMode = "speech-to-speech"
)

// ResolveMode picks the engine family: auto chooses speech-to-speech iff
// credentials for a configured S2S provider are present, otherwise
// pipeline; speech-to-speech without credentials downgrades to pipeline
// with a warning; pipeline is never upgraded. onWarning, if non-nil, is
// called when a downgrade happens.
func ResolveMode(configured ConfiguredMode, s2sCredentialsPresent bool, onWarning func(string)) Mode {
	switch configured {
	case ConfigSpeechToSpeech:
		if s2sCredentialsPresent {
			return ModeSpeechToSpeech
		}
		if onWarning != nil {
			onWarning("speech-to-speech configured but no provider credentials present; downgrading to pipeline")
		}
		return ModePipeline
	case ConfigAuto:
		if s2sCredentialsPresent {
			return ModeSpeechToSpeech
		}
		return ModePipeline
	default: // ConfigPipeline, or unset
		return ModePipeline
	}
}
