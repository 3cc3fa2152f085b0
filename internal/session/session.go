// Package session implements the per-guild voice session orchestrator: the
// state machine wiring a transport connection's inbound frames through
// per-user VAD and echo suppression into an engine, and the engine's
// outbound events back onto the transport's sender, including barge-in.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"discord-voice-agent/internal/echo"
	"discord-voice-agent/internal/engine"
	"discord-voice-agent/internal/logging"
	"discord-voice-agent/internal/transport"
	"discord-voice-agent/internal/vad"
)

var log = logging.For("session")

// State is one node of the voice session state machine.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
)

// idlePollInterval is how often the session polls the sender for drain
// completion after a turn-end, since AudioSender exposes Idle() rather than
// a completion channel.
const idlePollInterval = 20 * time.Millisecond

// Config wires one session instance to its transport, engine, and behavior.
type Config struct {
	GuildID         string
	Receiver        transport.AudioReceiver
	Sender          transport.AudioSender
	Engine          engine.Engine
	VAD             vad.Config
	BargeIn         bool
	EchoSuppression bool
	AllowedUsers    map[string]bool // empty/nil means everyone is allowed
	DisplayName     func(userID string) string
	OnStateChange   func(State)
}

// Session is one guild's running voice session.
type Session struct {
	cfg  Config
	echo *echo.Suppressor

	mu    sync.Mutex
	state State
	vads  map[string]*vad.Detector

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

func New(cfg Config) *Session {
	s := &Session{
		cfg:   cfg,
		vads:  make(map[string]*vad.Detector),
		state: StateIdle,
		done:  make(chan struct{}),
	}
	if cfg.EchoSuppression {
		s.echo = echo.NewSuppressor()
	}
	return s
}

// Start transitions idle -> listening, starts the engine, and launches the
// frame/speaking/event pumps. On engine start failure no pumps are started
// and the session remains idle.
func (s *Session) Start(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.cfg.Engine.Start(cctx); err != nil {
		cancel()
		return fmt.Errorf("session: engine start failed: %w", err)
	}

	s.setState(StateListening)

	go s.frameLoop()
	go s.speakingLoop()
	go s.engineEventLoop()

	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed && s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(st)
	}
}

func (s *Session) allowed(userID string) bool {
	if len(s.cfg.AllowedUsers) == 0 {
		return true
	}
	return s.cfg.AllowedUsers[userID]
}

func (s *Session) frameLoop() {
	for {
		select {
		case frame, ok := <-s.cfg.Receiver.Frames():
			if !ok {
				return
			}
			s.handleFrame(frame)
		case <-s.done:
			return
		}
	}
}

func (s *Session) handleFrame(frame transport.UserFrame) {
	if !s.allowed(frame.UserID) {
		return
	}
	samples := frame.PCM.Samples

	if s.echo != nil && s.echo.ShouldSuppress(samples) {
		return
	}

	det := s.detectorFor(frame.UserID)
	events := det.ProcessFrame(frame.PCM)

	s.cfg.Engine.FeedAudio(frame.UserID, samples)

	for _, ev := range events {
		if ev.Kind == vad.SpeechEnd {
			s.onSpeechEnd(frame.UserID)
		}
	}
}

func (s *Session) detectorFor(userID string) *vad.Detector {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.vads[userID]; ok {
		return d
	}
	d := vad.NewDetector(s.cfg.VAD)
	s.vads[userID] = d
	return d
}

func (s *Session) onSpeechEnd(userID string) {
	if s.State() == StateListening {
		s.setState(StateProcessing)
	}
	s.cfg.Engine.EndOfSpeech(userID)
}

func (s *Session) speakingLoop() {
	for {
		select {
		case ev, ok := <-s.cfg.Receiver.SpeakingUpdates():
			if !ok {
				return
			}
			if ev.Speaking {
				s.handleBargeIn(ev.UserID)
			}
		case <-s.done:
			return
		}
	}
}

// handleBargeIn interrupts an in-progress bot reply when a user starts
// talking over it, per the barge-in wiring contract: interrupt the engine,
// stop the sender immediately, drop the bot-speaking flag, and return to
// listening.
func (s *Session) handleBargeIn(userID string) {
	if !s.cfg.BargeIn {
		return
	}
	if s.State() != StateSpeaking {
		return
	}
	s.cfg.Engine.Interrupt()
	s.cfg.Sender.Stop()
	if s.echo != nil {
		s.echo.SetSpeaking(false)
	}
	s.setState(StateListening)
}

func (s *Session) engineEventLoop() {
	for {
		select {
		case ev, ok := <-s.cfg.Engine.Events():
			if !ok {
				return
			}
			s.handleEngineEvent(ev)
		case <-s.done:
			return
		}
	}
}

func (s *Session) handleEngineEvent(ev engine.Event) {
	switch e := ev.(type) {
	case engine.TranscriptIn:
		if s.State() == StateListening {
			s.setState(StateProcessing)
		}

	case engine.AudioOut:
		if s.State() != StateSpeaking {
			s.setState(StateSpeaking)
			if s.echo != nil {
				s.echo.SetSpeaking(true)
			}
		}
		if err := s.cfg.Sender.Write(e.PCM, e.SampleRate); err != nil {
			log.WithField("guild", s.cfg.GuildID).Warnf("sender write failed: %v", err)
		}

	case engine.TurnEnd:
		go s.waitDrainThenListen()

	case engine.Interrupted:
		if s.State() == StateSpeaking {
			s.cfg.Sender.Stop()
			if s.echo != nil {
				s.echo.SetSpeaking(false)
			}
			s.setState(StateListening)
		}

	case engine.Error:
		log.WithField("guild", s.cfg.GuildID).Errorf("engine error: %v", e.Err)

	case engine.ToolCallRequested, engine.AssistantTranscript:
		// no session-level action: handled inside the engine/bridge.
	}
}

// waitDrainThenListen polls the sender until it reports idle (all queued
// audio has reached the wire) before dropping the bot-speaking flag and
// returning to listening, since AudioSender exposes Idle() rather than a
// completion signal.
func (s *Session) waitDrainThenListen() {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.cfg.Sender.Idle() {
				if s.echo != nil {
					s.echo.SetSpeaking(false)
				}
				if s.State() == StateSpeaking {
					s.setState(StateListening)
				}
				return
			}
		case <-s.done:
			return
		}
	}
}

// Stop is terminal: no further events are observed after it returns.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}
		s.cfg.Engine.Stop()
		s.cfg.Sender.Stop()

		s.mu.Lock()
		for _, d := range s.vads {
			d.Close()
		}
		s.vads = nil
		s.mu.Unlock()

		s.setState(StateIdle)
	})
}
