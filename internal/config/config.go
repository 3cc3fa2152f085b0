// Package config loads the voice agent's configuration from a YAML file
// via viper, with every API key falling back to a named environment
// variable when the file leaves it blank.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// STTConfig configures the primary/fallback speech-to-text providers.
type STTConfig struct {
	Provider       string `mapstructure:"provider"`
	Fallback       string `mapstructure:"fallback"`
	OpenAIAPIKey   string `mapstructure:"openaiApiKey"`
	OpenAIModel    string `mapstructure:"openaiModel"`
	DeepgramAPIKey string `mapstructure:"deepgramApiKey"`
	DeepgramModel  string `mapstructure:"deepgramModel"`
	EndpointingMS  int    `mapstructure:"endpointingMs"`
}

// TTSConfig configures the primary/fallback text-to-speech providers.
type TTSConfig struct {
	Provider     string  `mapstructure:"provider"`
	Fallback     string  `mapstructure:"fallback"`
	OpenAIAPIKey string  `mapstructure:"openaiApiKey"`
	OpenAIModel  string  `mapstructure:"openaiModel"`
	OpenAIVoice  string  `mapstructure:"openaiVoice"`
	OpenAISpeed  float64 `mapstructure:"openaiSpeed"`
	EdgeVoice    string  `mapstructure:"edgeVoice"`
}

// OpenAIRealtimeConfig configures the OpenAI Realtime S2S provider.
type OpenAIRealtimeConfig struct {
	APIKey string `mapstructure:"apiKey"`
	Model  string `mapstructure:"model"`
	Voice  string `mapstructure:"voice"`
}

// GeminiLiveConfig configures the Gemini Live S2S provider.
type GeminiLiveConfig struct {
	APIKey            string `mapstructure:"apiKey"`
	Model             string `mapstructure:"model"`
	Voice             string `mapstructure:"voice"`
	SessionDurationMS int    `mapstructure:"sessionDurationMs"`
	RotationBufferMS  int    `mapstructure:"rotationBufferMs"`
}

// S2SConfig configures the speech-to-speech engine family.
type S2SConfig struct {
	Provider       string               `mapstructure:"provider"` // "openai" | "gemini"
	OpenAIRealtime OpenAIRealtimeConfig `mapstructure:"openaiRealtime"`
	GeminiLive     GeminiLiveConfig     `mapstructure:"geminiLive"`
}

// VADConfig configures voice activity detection.
type VADConfig struct {
	Engine              string  `mapstructure:"engine"`
	Threshold           float64 `mapstructure:"threshold"`
	SilenceDurationMS   int     `mapstructure:"silenceDurationMs"`
	MinSpeechDurationMS int     `mapstructure:"minSpeechDurationMs"`
}

// HistoryMirrorConfig is the optional off-by-default Redis history mirror.
type HistoryMirrorConfig struct {
	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		MaxLen   int64  `mapstructure:"maxLen"`
	} `mapstructure:"redis"`
}

// BehaviorConfig configures per-session conversational behavior.
type BehaviorConfig struct {
	BargeIn              bool                `mapstructure:"bargeIn"`
	EchoSuppression      bool                `mapstructure:"echoSuppression"`
	MaxRecordingMS       int                 `mapstructure:"maxRecordingMs"`
	MaxConversationTurns int                 `mapstructure:"maxConversationTurns"`
	SystemPrompt         string              `mapstructure:"systemPrompt"`
	AllowedUsers         []string            `mapstructure:"allowedUsers"`
	HistoryMirror        HistoryMirrorConfig `mapstructure:"historyMirror"`
}

// RPCConfig configures the management RPC HTTP server.
type RPCConfig struct {
	Addr string `mapstructure:"addr"`
}

// DiscordConfig configures the Discord bot session.
type DiscordConfig struct {
	BotToken string `mapstructure:"botToken"`
}

// WorkerPoolConfig bounds outbound HTTP concurrency.
type WorkerPoolConfig struct {
	Size int `mapstructure:"size"`
}

// LogConfig mirrors internal/logging.Config for file-driven setup.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	ToConsole  bool   `mapstructure:"toConsole"`
	ToFile     bool   `mapstructure:"toFile"`
	FilePath   string `mapstructure:"filePath"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
}

// Config is the voice agent's fully-resolved configuration.
type Config struct {
	Mode       string           `mapstructure:"mode"` // auto|pipeline|speech-to-speech
	Discord    DiscordConfig    `mapstructure:"discord"`
	STT        STTConfig        `mapstructure:"stt"`
	TTS        TTSConfig        `mapstructure:"tts"`
	S2S        S2SConfig        `mapstructure:"s2s"`
	VAD        VADConfig        `mapstructure:"vad"`
	Behavior   BehaviorConfig   `mapstructure:"behavior"`
	RPC        RPCConfig        `mapstructure:"rpc"`
	WorkerPool WorkerPoolConfig `mapstructure:"workerPool"`
	Log        LogConfig        `mapstructure:"log"`
}

// applyEnvFallbacks fills each API-key-shaped field from the named environment
// variable it falls back to when the config file leaves it blank, per the
// "all API keys fall back to named environment variables" requirement.
func (c *Config) applyEnvFallbacks() {
	c.Discord.BotToken = firstNonEmpty(c.Discord.BotToken, os.Getenv("DISCORD_BOT_TOKEN"))
	c.STT.OpenAIAPIKey = firstNonEmpty(c.STT.OpenAIAPIKey, os.Getenv("OPENAI_API_KEY"))
	c.STT.DeepgramAPIKey = firstNonEmpty(c.STT.DeepgramAPIKey, os.Getenv("DEEPGRAM_API_KEY"))
	c.TTS.OpenAIAPIKey = firstNonEmpty(c.TTS.OpenAIAPIKey, os.Getenv("OPENAI_API_KEY"))
	c.S2S.OpenAIRealtime.APIKey = firstNonEmpty(c.S2S.OpenAIRealtime.APIKey, os.Getenv("OPENAI_API_KEY"))
	c.S2S.GeminiLive.APIKey = firstNonEmpty(c.S2S.GeminiLive.APIKey, os.Getenv("GEMINI_API_KEY"))
	c.Behavior.HistoryMirror.Redis.Password = firstNonEmpty(c.Behavior.HistoryMirror.Redis.Password, os.Getenv("REDIS_PASSWORD"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "auto")
	v.SetDefault("stt.endpointingMs", 300)
	v.SetDefault("tts.openaiVoice", "alloy")
	v.SetDefault("vad.engine", "neural")
	v.SetDefault("vad.threshold", 0.5)
	v.SetDefault("vad.silenceDurationMs", 500)
	v.SetDefault("vad.minSpeechDurationMs", 100)
	v.SetDefault("behavior.bargeIn", true)
	v.SetDefault("behavior.echoSuppression", true)
	v.SetDefault("behavior.maxRecordingMs", 30000)
	v.SetDefault("behavior.maxConversationTurns", 50)
	v.SetDefault("rpc.addr", ":8090")
	v.SetDefault("workerPool.size", 32)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.toConsole", true)
}

// Load reads the YAML config at path (if it exists — a missing file is not
// an error, since every value has a default or an environment fallback),
// decodes it onto Config, and applies environment-variable fallbacks for
// API keys.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				if !os.IsNotExist(err) {
					return nil, fmt.Errorf("config: reading %s: %w", path, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	cfg.applyEnvFallbacks()
	return &cfg, nil
}
