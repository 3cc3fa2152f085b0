package vad

import (
	"sync"
	"time"

	"discord-voice-agent/internal/audio"
)

// Detector is a per-user, stateful VAD instance. It is created lazily on
// the first frame observed from a user id (see the session package) and
// disposed with the session.
type Detector struct {
	cfg Config

	mu          sync.Mutex
	active      engine
	usingNeural bool
	downgraded  bool

	inSpeech      bool
	candidateMS   int
	silenceMS     int

	closed     bool
	closeOnce  sync.Once
	loadWG     sync.WaitGroup
}

// NewDetector constructs a detector for one user. If cfg.Engine is
// "neural", the shared model is acquired asynchronously in the
// background; frames observed before it is ready are classified with the
// RMS engine so the detector is immediately usable either way.
func NewDetector(cfg Config) *Detector {
	cfg = withDefaults(cfg)
	d := &Detector{
		cfg:    cfg,
		active: newRMSEngine(cfg.Threshold),
	}
	if cfg.Engine == "neural" {
		d.loadWG.Add(1)
		go func() {
			defer d.loadWG.Done()
			neural, err := globalModel.acquire(cfg.Threshold)
			d.mu.Lock()
			defer d.mu.Unlock()
			if d.closed {
				if neural != nil {
					neural.close()
				}
				return
			}
			if err != nil {
				log.WithError(err).Debug("neural VAD unavailable, staying on RMS")
				return
			}
			if !d.downgraded {
				d.active = neural
				d.usingNeural = true
			}
		}()
	}
	return d
}

// ProcessFrame feeds one 16kHz-mono frame and returns the events it
// produced: zero or one per frame.
func (d *Detector) ProcessFrame(frame audio.Frame) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || !isProcessingFormat(frame) {
		return nil
	}

	raw, err := d.active.isSpeech(frame)
	if err != nil {
		// One-way downgrade: a processing error permanently drops to RMS
		// for the rest of this detector's life.
		log.WithError(err).Warn("vad processing error, downgrading to RMS")
		d.active = newRMSEngine(d.cfg.Threshold)
		d.usingNeural = false
		d.downgraded = true
		raw, _ = d.active.isSpeech(frame)
	}

	frameMS := (len(frame.Samples) * 1000) / maxInt(frame.SampleRate, 1)
	return d.advance(raw, frameMS)
}

// advance runs the start/end debounce state machine for one frame's
// worth of raw classification.
func (d *Detector) advance(raw bool, frameMS int) []Event {
	var events []Event
	now := time.Now()

	// The RMS fallback starts immediately on the first above-threshold
	// frame (no minSpeechDuration debounce); the neural engine requires
	// minSpeechDurationMs of continuous above-threshold frames first.
	requireMinSpeech := d.usingNeural

	if raw {
		d.silenceMS = 0
		if !d.inSpeech {
			if !requireMinSpeech {
				d.inSpeech = true
				events = append(events, Event{Kind: SpeechStart, At: now})
			} else {
				d.candidateMS += frameMS
				if d.candidateMS >= d.cfg.MinSpeechDurationMS {
					d.inSpeech = true
					events = append(events, Event{Kind: SpeechStart, At: now})
				}
			}
		}
	} else {
		d.candidateMS = 0
		if d.inSpeech {
			d.silenceMS += frameMS
			if d.silenceMS >= d.cfg.SilenceDurationMS {
				d.inSpeech = false
				d.silenceMS = 0
				events = append(events, Event{Kind: SpeechEnd, At: now})
			}
		}
	}
	return events
}

// InSpeech reports whether the detector currently believes the user is
// mid-utterance.
func (d *Detector) InSpeech() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inSpeech
}

// Close is idempotent and awaits any pending neural-model acquisition
// before releasing resources.
func (d *Detector) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		active := d.active
		d.mu.Unlock()

		d.loadWG.Wait()

		d.mu.Lock()
		defer d.mu.Unlock()
		if active != nil {
			active.close()
		}
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
