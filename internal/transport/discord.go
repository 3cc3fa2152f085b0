// Package transport adapts github.com/bwmarrin/discordgo's VoiceConnection
// to the two narrow interfaces the voice session core depends on:
// AudioReceiver (per-user decoded PCM in) and AudioSender (PCM out). The
// Opus/RTP/gateway machinery inside discordgo is not reimplemented here;
// this is a thin, deliberately small translation layer so the core's
// tests can substitute a fake transport instead of a real Discord socket.
package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	opus "gopkg.in/hraban/opus.v2"

	"discord-voice-agent/internal/audio"
	"discord-voice-agent/internal/logging"
)

var log = logging.For("transport")

// UserFrame is one user's decoded voice frame, ready for VAD/STT.
type UserFrame struct {
	UserID string
	PCM    audio.Frame // 16kHz mono
}

// SpeakingEvent mirrors Discord's per-user speaking-state notifications.
type SpeakingEvent struct {
	UserID   string
	Speaking bool
}

// AudioReceiver is the narrow inbound contract the voice session consumes.
type AudioReceiver interface {
	Frames() <-chan UserFrame
	SpeakingUpdates() <-chan SpeakingEvent
}

// AudioSender is the narrow outbound contract; it also satisfies
// internal/playback.Sender so the playback queue can drive it directly.
type AudioSender interface {
	Write(chunk []byte, sampleRate int) error
	Stop()
	Idle() bool
}

// Conn is one guild's voice connection: a discordgo.VoiceConnection plus
// the per-SSRC Opus decoders, outbound encoder, and pacing goroutine the
// session needs but discordgo doesn't provide directly.
type Conn struct {
	vc *discordgo.VoiceConnection

	decMu    sync.Mutex
	decoders map[uint32]*opus.Decoder
	ssrcUser map[uint32]string

	encoder *opus.Encoder

	frames   chan UserFrame
	speaking chan SpeakingEvent

	sendMu  sync.Mutex
	pending [][]byte

	closeOnce sync.Once
	done      chan struct{}
}

// Join opens a voice connection to the given guild/channel and starts the
// receive and send pumps.
func Join(session *discordgo.Session, guildID, channelID string) (*Conn, error) {
	vc, err := session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("transport: join failed: %w", err)
	}

	enc, err := audio.NewEncoder()
	if err != nil {
		vc.Disconnect()
		return nil, fmt.Errorf("transport: opus encoder: %w", err)
	}

	c := &Conn{
		vc:       vc,
		decoders: make(map[uint32]*opus.Decoder),
		ssrcUser: make(map[uint32]string),
		encoder:  enc,
		frames:   make(chan UserFrame, 256),
		speaking: make(chan SpeakingEvent, 32),
		done:     make(chan struct{}),
	}

	vc.AddHandler(func(_ *discordgo.VoiceConnection, vsu *discordgo.VoiceSpeakingUpdate) {
		c.decMu.Lock()
		c.ssrcUser[uint32(vsu.SSRC)] = vsu.UserID
		c.decMu.Unlock()
		select {
		case c.speaking <- SpeakingEvent{UserID: vsu.UserID, Speaking: vsu.Speaking}:
		default:
			log.Warn("speaking-update channel full, dropping event")
		}
	})

	go c.receiveLoop()
	go c.sendLoop()

	return c, nil
}

func (c *Conn) Frames() <-chan UserFrame             { return c.frames }
func (c *Conn) SpeakingUpdates() <-chan SpeakingEvent { return c.speaking }

func (c *Conn) receiveLoop() {
	defer close(c.frames)
	for {
		select {
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			frame, userID, err := c.decode(pkt)
			if err != nil {
				continue // corrupted packet: drop silently
			}
			select {
			case c.frames <- UserFrame{UserID: userID, PCM: frame}:
			default:
				log.Warn("inbound frame channel full, dropping frame")
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) decode(pkt *discordgo.Packet) (audio.Frame, string, error) {
	c.decMu.Lock()
	dec, ok := c.decoders[pkt.SSRC]
	if !ok {
		d, err := audio.NewDecoder()
		if err != nil {
			c.decMu.Unlock()
			return audio.Frame{}, "", err
		}
		dec = d
		c.decoders[pkt.SSRC] = dec
	}
	userID := c.ssrcUser[pkt.SSRC]
	c.decMu.Unlock()

	frame, err := audio.DecodeForProcessing(dec, pkt.Opus)
	if err != nil {
		return audio.Frame{}, "", err
	}
	return frame, userID, nil
}

// Write implements internal/playback.Sender: it resamples the given mono
// PCM chunk (at the provider's native sample rate) to transport format,
// chunks it into 20ms Opus frames, and queues them for the pacing
// goroutine.
func (c *Conn) Write(chunk []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = audio.TransportSampleRate
	}
	samples := audio.ToInt16(chunk)
	transportFrame := audio.ToTransportFormat(audio.Frame{Samples: samples, SampleRate: sampleRate, Channels: 1})
	pcmBytes := audio.ToBytes(transportFrame.Samples)

	var opusFrames [][]byte
	for _, raw := range audio.ChunkToFrames(pcmBytes) {
		rawFrame := audio.Frame{Samples: audio.ToInt16(raw), SampleRate: audio.TransportSampleRate, Channels: audio.TransportChannels}
		encoded, err := audio.EncodeForTransport(c.encoder, rawFrame)
		if err != nil {
			return fmt.Errorf("transport: opus encode: %w", err)
		}
		opusFrames = append(opusFrames, encoded)
	}

	c.sendMu.Lock()
	c.pending = append(c.pending, opusFrames...)
	c.sendMu.Unlock()
	return nil
}

// Stop discards any frames not yet sent, for barge-in.
func (c *Conn) Stop() {
	c.sendMu.Lock()
	c.pending = nil
	c.sendMu.Unlock()
}

// Idle reports whether every queued frame has drained to the wire.
func (c *Conn) Idle() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return len(c.pending) == 0
}

// sendLoop paces outbound Opus frames at 20ms, matching the transport
// frame duration; Discord expects real-time cadence, not a burst.
func (c *Conn) sendLoop() {
	ticker := time.NewTicker(audio.FrameDurationMS * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sendMu.Lock()
			if len(c.pending) == 0 {
				c.sendMu.Unlock()
				continue
			}
			next := c.pending[0]
			c.pending = c.pending[1:]
			c.sendMu.Unlock()
			select {
			case c.vc.OpusSend <- next:
			case <-c.done:
				return
			}
		case <-c.done:
			return
		}
	}
}

// Disconnect tears the voice connection down; safe to call once.
func (c *Conn) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.vc.Disconnect()
	})
	return err
}
