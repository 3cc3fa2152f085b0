// Package deepgram implements the Deepgram live streaming STT provider:
// linear16 frames written over a WebSocket, interim and final transcripts
// demultiplexed from the server's JSON result envelopes
// (interim_results=true, endpointing=<ms>, vad_events=true).
//
// The connection follows a lazy-connect, mutex-guarded-write, read-loop-
// feeding-a-channel discipline, torn down cleanly on context cancellation.
package deepgram

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"discord-voice-agent/internal/stt"

	"github.com/gorilla/websocket"
)

type Provider struct {
	APIKey        string
	EndpointingMS int
	Model         string
}

type Config struct {
	APIKey        string
	EndpointingMS int
	Model         string
}

func New(cfg Config) *Provider {
	if cfg.EndpointingMS == 0 {
		cfg.EndpointingMS = 300
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Provider{APIKey: cfg.APIKey, EndpointingMS: cfg.EndpointingMS, Model: cfg.Model}
}

func (p *Provider) Name() string            { return "deepgram" }
func (p *Provider) SupportsStreaming() bool { return true }

type serverMessage struct {
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

// Start opens a streaming recognition session. feed pushes PCM16 frames;
// results delivers partial/final transcripts; stop closes the socket.
func (p *Provider) Start(ctx context.Context, sampleRate int) (func(pcm []int16), <-chan stt.Transcript, func(), error) {
	endpoint := fmt.Sprintf(
		"wss://api.deepgram.com/v1/listen?encoding=linear16&sample_rate=%d&interim_results=true&endpointing=%d&vad_events=true&model=%s",
		sampleRate, p.EndpointingMS, p.Model,
	)

	header := http.Header{}
	header.Set("Authorization", "Token "+p.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, nil, func() {}, fmt.Errorf("deepgram stt: dial failed: %w", err)
	}

	results := make(chan stt.Transcript, 32)
	var writeMu sync.Mutex
	var closeOnce sync.Once

	stop := func() {
		closeOnce.Do(func() {
			writeMu.Lock()
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			writeMu.Unlock()
			conn.Close()
		})
	}

	go func() {
		defer close(results)
		defer stop()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg serverMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			text := msg.Channel.Alternatives[0].Transcript
			if text == "" {
				continue
			}
			results <- stt.Transcript{Text: text, Final: msg.IsFinal}
		}
	}()

	go func() {
		<-ctx.Done()
		stop()
	}()

	feed := func(pcm []int16) {
		buf := make([]byte, len(pcm)*2)
		for i, s := range pcm {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteMessage(websocket.BinaryMessage, buf)
	}

	return feed, results, stop, nil
}
