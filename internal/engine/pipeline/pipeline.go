// Package pipeline implements the streaming STT -> agent -> sentence-split
// -> TTS engine family: one utterance flows through a batch or streaming
// STT provider, the transcript is handed to the agent bridge, and each
// completed sentence in the agent's reply is truncated and submitted to a
// TTS provider as soon as the sentence boundary is seen, so playback can
// begin before the rest of the reply has been generated.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"discord-voice-agent/internal/agentbridge"
	"discord-voice-agent/internal/audio"
	"discord-voice-agent/internal/conversation"
	"discord-voice-agent/internal/engine"
	"discord-voice-agent/internal/playback"
	"discord-voice-agent/internal/stt"
	"discord-voice-agent/internal/tts"
)

// finalWait bounds how long EndOfSpeech waits for a streaming STT provider
// to deliver its final transcript after Stop is called.
const finalWait = 3 * time.Second

// Config wires one pipeline engine instance to its providers and session
// state. FallbackSTT/FallbackTTS may be nil.
type Config struct {
	PrimarySTT  stt.Provider
	FallbackSTT stt.Provider
	PrimaryTTS  tts.Provider
	FallbackTTS tts.Provider
	Bridge      *agentbridge.Bridge
	History     *conversation.History
	DisplayName func(userID string) string
}

// userStream is the per-user accumulation state between speech-start and
// end-of-speech: either raw PCM for a batch STT, or a live feed/results
// pair for a streaming one.
type userStream struct {
	pcm     []int16
	feed    func(pcm []int16)
	results <-chan stt.Transcript
	stop    func()
	final   chan string
}

// Engine implements engine.Engine for the pipeline family.
type Engine struct {
	cfg    Config
	events chan engine.Event
	queue  *playback.Queue
	sender *eventSender

	mu           sync.Mutex
	isProcessing bool
	interrupted  bool
	users        map[string]*userStream
	activeCancel context.CancelFunc
}

func New(cfg Config) *Engine {
	e := &Engine{
		cfg:    cfg,
		events: make(chan engine.Event, 64),
		users:  make(map[string]*userStream),
	}
	e.sender = &eventSender{e: e}
	e.queue = playback.NewQueue(e.sender, nil)
	e.queue.OnError(func(err error) { e.emit(engine.Error{Err: fmt.Errorf("tts playback: %w", err)}) })
	return e
}

func (e *Engine) Mode() engine.Mode          { return engine.ModePipeline }
func (e *Engine) Events() <-chan engine.Event { return e.events }

func (e *Engine) Start(ctx context.Context) error {
	return nil
}

// FeedAudio forwards one frame to the current user's STT accumulation:
// buffered for a batch provider, or fed live to a streaming one. Frames
// arriving while a prior utterance is still processing are dropped, per
// the single-processing-lock, single-speaker assumption.
func (e *Engine) FeedAudio(userID string, pcm []int16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isProcessing {
		return
	}
	us := e.userStreamLocked(userID)
	if us.feed != nil {
		us.feed(pcm)
		return
	}
	us.pcm = append(us.pcm, pcm...)
}

// userStreamLocked returns the user's accumulation state, lazily starting
// a streaming STT session the first time a user is seen if the primary
// provider supports streaming.
func (e *Engine) userStreamLocked(userID string) *userStream {
	if us, ok := e.users[userID]; ok {
		return us
	}
	us := &userStream{final: make(chan string, 1)}
	if sst, ok := e.cfg.PrimarySTT.(stt.StreamTranscriber); ok {
		feed, results, stop, err := sst.Start(context.Background(), audio.ProcessingSampleRate)
		if err == nil {
			us.feed, us.results, us.stop = feed, results, stop
			go e.pumpStreamResults(userID, us)
		}
	}
	e.users[userID] = us
	return us
}

func (e *Engine) pumpStreamResults(userID string, us *userStream) {
	for t := range us.results {
		e.emit(engine.TranscriptIn{UserID: userID, Text: t.Text, Final: t.Final})
		if t.Final {
			select {
			case us.final <- t.Text:
			default:
			}
		}
	}
}

// EndOfSpeech triggers STT->agent->TTS for the buffered utterance. Arriving
// while a previous utterance is still processing discards the buffered
// state instead of queuing it — the natural-conversation single-speaker
// assumption means a second concurrent EOS is treated as spurious.
func (e *Engine) EndOfSpeech(userID string) {
	e.mu.Lock()
	if e.isProcessing {
		delete(e.users, userID)
		e.mu.Unlock()
		return
	}
	us, ok := e.users[userID]
	delete(e.users, userID)
	if !ok {
		e.mu.Unlock()
		return
	}
	e.isProcessing = true
	e.interrupted = false
	e.mu.Unlock()

	go e.process(userID, us)
}

func (e *Engine) process(userID string, us *userStream) {
	defer func() {
		e.mu.Lock()
		e.isProcessing = false
		e.activeCancel = nil
		e.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.activeCancel = cancel
	e.mu.Unlock()
	defer cancel()

	text, err := e.transcribe(ctx, us)
	if err != nil {
		e.emit(engine.Error{Err: fmt.Errorf("stt: %w", err)})
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	displayName := ""
	if e.cfg.DisplayName != nil {
		displayName = e.cfg.DisplayName(userID)
	}

	e.emit(engine.TranscriptIn{UserID: userID, Text: text, Final: true})
	if e.cfg.History != nil {
		e.cfg.History.Append(conversation.Turn{
			Role: conversation.RoleUser, UserID: userID, DisplayName: displayName,
			Content: text, TimestampMS: time.Now().UnixMilli(),
		})
	}

	splitter := &sentenceSplitter{}
	var full strings.Builder

	onChunk := func(tok string) {
		if e.isInterrupted() {
			return
		}
		full.WriteString(tok)
		e.emit(engine.AssistantTranscript{Text: tok, Final: false})
		for _, sentence := range splitter.feed(tok) {
			e.synthesizeAndEnqueue(ctx, sentence)
		}
	}

	var history []conversation.Turn
	if e.cfg.History != nil {
		history = e.cfg.History.Snapshot()
	}

	reply, err := e.cfg.Bridge.StreamResponse(ctx, userID, displayName, history, text, onChunk)
	if err != nil {
		e.emit(engine.Error{Err: fmt.Errorf("agent: %w", err)})
		return
	}
	if !e.isInterrupted() {
		if rest, ok := splitter.flush(); ok {
			e.synthesizeAndEnqueue(ctx, rest)
		}
	}
	if reply == "" {
		reply = full.String()
	}
	if e.cfg.History != nil && reply != "" {
		e.cfg.History.Append(conversation.Turn{Role: conversation.RoleAssistant, Content: reply, TimestampMS: time.Now().UnixMilli()})
	}
	// Hold turn-end until the playback queue has handed every enqueued
	// sentence on as AudioOut events, so this turn's audio precedes TurnEnd.
	for e.queue.IsPlaying() && !e.isInterrupted() && ctx.Err() == nil {
		time.Sleep(10 * time.Millisecond)
	}
	e.emit(engine.AssistantTranscript{Text: reply, Final: true})
	e.emit(engine.TurnEnd{})
}

func (e *Engine) transcribe(ctx context.Context, us *userStream) (string, error) {
	if us.stop != nil {
		us.stop()
		select {
		case text := <-us.final:
			return text, nil
		case <-time.After(finalWait):
			return "", fmt.Errorf("timed out waiting for streaming transcript")
		}
	}

	text, err := transcribeBatch(ctx, e.cfg.PrimarySTT, us.pcm)
	if err != nil && e.cfg.FallbackSTT != nil {
		return transcribeBatch(ctx, e.cfg.FallbackSTT, us.pcm)
	}
	return text, err
}

func transcribeBatch(ctx context.Context, p stt.Provider, pcm []int16) (string, error) {
	if p == nil {
		return "", fmt.Errorf("no STT provider configured")
	}
	bt, ok := p.(stt.BatchTranscriber)
	if !ok {
		return "", fmt.Errorf("%s does not support batch transcription", p.Name())
	}
	return bt.Transcribe(ctx, pcm, audio.ProcessingSampleRate)
}

// synthesizeAndEnqueue submits one sentence to TTS and enqueues the
// resulting stream. Because Enqueue returns immediately and the playback
// queue is FIFO, the caller can move on to synthesizing the next sentence
// while this one is still playing.
func (e *Engine) synthesizeAndEnqueue(ctx context.Context, sentence string) {
	if e.isInterrupted() {
		return
	}
	text := tts.Truncate(sentence)
	stream := startSynthesis(ctx, e.cfg.PrimaryTTS, text)
	if stream == nil && e.cfg.FallbackTTS != nil {
		stream = startSynthesis(ctx, e.cfg.FallbackTTS, text)
	}
	if stream == nil {
		e.emit(engine.Error{Err: fmt.Errorf("tts: no provider could synthesize %q", text)})
		return
	}
	e.queue.Enqueue(stream)
}

func startSynthesis(ctx context.Context, p tts.Provider, text string) *playback.Stream {
	if p == nil {
		return nil
	}
	if streamer, ok := p.(tts.Streamer); ok {
		chunks, errs, cancel, err := streamer.SynthesizeStream(ctx, text)
		if err != nil {
			return nil
		}
		pcmChunks := make(chan []byte, 8)
		stream := &playback.Stream{Chunks: pcmChunks, Err: errs, Cancel: cancel}
		go func() {
			defer close(pcmChunks)
			for c := range chunks {
				stream.SampleRate = c.SampleRate // set before send: visible to the receiver via channel happens-before
				pcmChunks <- c.PCM
			}
		}()
		return stream
	}
	if synth, ok := p.(tts.Synthesizer); ok {
		chunksOut := make(chan []byte, 4)
		errOut := make(chan error, 1)
		stream := &playback.Stream{Chunks: chunksOut, Err: errOut, Cancel: func() {}}
		go func() {
			defer close(chunksOut)
			result, err := synth.Synthesize(ctx, text)
			if err != nil {
				errOut <- err
				return
			}
			for _, c := range result {
				stream.SampleRate = c.SampleRate
				chunksOut <- c.PCM
			}
		}()
		return stream
	}
	return nil
}

// InjectText lets the management RPC or a tool speak without a user
// utterance: it truncates the given text and sends it through the same
// TTS -> enqueue path as one unit, without sentence splitting.
func (e *Engine) InjectText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty text")
	}
	e.synthesizeAndEnqueue(context.Background(), text)
	return nil
}

// Interrupt is idempotent: it flips the interrupted flag (suppressing
// pending sentence/TTS emissions), cancels the in-flight agent/STT call if
// any, and clears the playback queue for barge-in.
func (e *Engine) Interrupt() {
	e.mu.Lock()
	e.interrupted = true
	cancel := e.activeCancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.queue.Clear()
	e.emit(engine.Interrupted{})
}

func (e *Engine) isInterrupted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interrupted
}

// Stop tears the engine down. No further events are sent after it returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.activeCancel
	for _, us := range e.users {
		if us.stop != nil {
			us.stop()
		}
	}
	e.users = make(map[string]*userStream)
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.queue.Clear()
	close(e.events)
}

func (e *Engine) emit(ev engine.Event) {
	defer func() { recover() }() // events channel may be closed by a racing Stop
	e.events <- ev
}

// eventSender adapts the playback queue's Sender contract onto the
// engine's own event stream: a session (or test) consumes AudioOut events
// exactly as it would from an S2S engine, so the queue's FIFO ordering is
// enforced without the pipeline engine knowing anything about the real
// transport.
type eventSender struct {
	e *Engine
}

func (s *eventSender) Write(chunk []byte, sampleRate int) error {
	s.e.emit(engine.AudioOut{PCM: chunk, SampleRate: sampleRate})
	return nil
}

func (s *eventSender) Stop() {}

// Idle always reports true: this sender only forwards chunks as engine
// events, it does not itself perform real-time playback, so there is
// nothing to drain before the next queue entry can become current.
func (s *eventSender) Idle() bool { return true }
