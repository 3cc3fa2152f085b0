// Command voiceagent is the process entrypoint: it loads configuration,
// sets up structured logging, opens a Discord gateway session, wires the
// session manager and management RPC server, and blocks until it receives
// an interrupt signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"discord-voice-agent/internal/agentbridge"
	"discord-voice-agent/internal/config"
	"discord-voice-agent/internal/logging"
	"discord-voice-agent/internal/manager"
	"discord-voice-agent/internal/rpc"
	"discord-voice-agent/internal/workerpool"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceagent: loading config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		ToConsole:  cfg.Log.ToConsole,
		ToFile:     cfg.Log.ToFile,
		FilePath:   cfg.Log.FilePath,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "voiceagent: initializing logging: %v\n", err)
		os.Exit(1)
	}
	log := logging.For("main")

	if cfg.Discord.BotToken == "" {
		log.Fatal("discord.botToken (or DISCORD_BOT_TOKEN) is required")
	}

	session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		log.Fatalf("creating discord session: %v", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	if err := session.Open(); err != nil {
		log.Fatalf("opening discord gateway connection: %v", err)
	}
	defer session.Close()

	pool, err := workerpool.New(cfg.WorkerPool.Size)
	if err != nil {
		log.Fatalf("creating worker pool: %v", err)
	}
	defer pool.Release()

	mgr := manager.New(manager.Config{
		Discord:    session,
		Dispatcher: newUnconfiguredDispatcher(log),
		Pool:       pool,
		STT:        cfg.STT,
		TTS:        cfg.TTS,
		S2S:        cfg.S2S,
		VAD:        cfg.VAD,
		Behavior:   cfg.Behavior,
		Mode:       cfg.Mode,
		DisplayName: func(userID string) string {
			if u, err := session.User(userID); err == nil && u.Username != "" {
				return u.Username
			}
			return userID
		},
	})

	srv := rpc.New(mgr)
	go func() {
		if err := srv.Run(cfg.RPC.Addr); err != nil {
			log.Errorf("management rpc server stopped: %v", err)
		}
	}()

	log.Infof("voiceagent ready, mode=%s rpc=%s", cfg.Mode, cfg.RPC.Addr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down, leaving all voice sessions")
	mgr.StopAll()
}

// unconfiguredDispatcher answers every dispatch with a fixed notice; wiring
// the real host agent runtime's dispatcher (the thing that actually calls
// an LLM) is an integration decision left to the deployment, not this
// binary, since that runtime lives outside this module.
type unconfiguredDispatcher struct {
	log *logrus.Entry
}

func newUnconfiguredDispatcher(log *logrus.Entry) agentbridge.Dispatcher {
	return &unconfiguredDispatcher{log: log}
}

func (d *unconfiguredDispatcher) Dispatch(_ context.Context, dc agentbridge.DispatchContext, onChunk func(string)) (string, error) {
	d.log.Warn("agentbridge.Dispatcher is not configured; wire a real host agent runtime before deploying")
	const notice = "Voice agent dispatcher is not configured yet."
	onChunk(notice)
	return notice, nil
}
