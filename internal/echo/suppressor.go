// Package echo implements the per-session heuristic echo suppressor: a
// two-stage gate (temporal cooldown, then energy correlation against a
// rolling outbound RMS history) that drops inbound frames likely to be the
// bot's own synthesized audio leaking back through a user's microphone.
//
// This is not an acoustic echo canceller: it is a cheap heuristic that
// assumes a typical consumer setup (speakers plus microphone, no line-in
// loopback), traded off against being good enough rather than DSP-accurate.
package echo

import (
	"math"
	"sync"
	"time"
)

const (
	// ringCapacity is the outbound RMS history length (≈1s at 20ms frames).
	ringCapacity = 50

	// cooldownMS is how long after the bot stops speaking that frames are
	// still gated by the fixed cooldown threshold.
	cooldownMS = 300

	// cooldownRMSThreshold is the fixed int16-units RMS floor used only
	// during cooldown. It is a constant rather than derived from the
	// outbound ring mean: right after playback stops there may not be
	// enough ring history yet to compute a reliable mean.
	cooldownRMSThreshold = 600

	// correlationFactor is the multiple of mean outbound RMS an inbound
	// frame must meet or exceed to be treated as genuine barge-in rather
	// than echo, while the bot is actively speaking.
	correlationFactor = 1.4
)

// Suppressor tracks one session's playback state and decides whether an
// inbound frame should be dropped before it reaches VAD/engine.
type Suppressor struct {
	mu        sync.Mutex
	speaking  bool
	stoppedAt time.Time
	outbound  *ring
}

func NewSuppressor() *Suppressor {
	return &Suppressor{outbound: newRing(ringCapacity)}
}

// SetSpeaking updates the bot-speaking flag. Transitioning to false records
// the stop time, starting the cooldown window.
func (s *Suppressor) SetSpeaking(speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speaking && !speaking {
		s.stoppedAt = time.Now()
	}
	s.speaking = speaking
}

// RegisterOutbound pushes one outbound chunk's RMS onto the rolling history.
// Called immediately before a chunk is handed to the sender.
func (s *Suppressor) RegisterOutbound(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbound.push(rms(samples))
}

// ShouldSuppress reports whether an inbound frame should be dropped.
func (s *Suppressor) ShouldSuppress(samples []int16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	inCooldown := !s.speaking && !s.stoppedAt.IsZero() &&
		time.Since(s.stoppedAt) < cooldownMS*time.Millisecond

	if !s.speaking && !inCooldown {
		return false
	}

	inRMS := rms(samples)

	if inCooldown && !s.speaking {
		return inRMS < cooldownRMSThreshold
	}

	// Bot is actively speaking: energy-correlation stage.
	meanOutbound := s.outbound.mean()
	return inRMS < correlationFactor*meanOutbound
}

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
