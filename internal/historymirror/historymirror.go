// Package historymirror optionally mirrors a session's conversation turns
// to a Redis stream as they're appended, for off-process observability
// (an ops dashboard tailing XREAD, or a separate long-term memory job) —
// entirely off the hot path the session/engine code runs on.
package historymirror

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"discord-voice-agent/internal/conversation"
	"discord-voice-agent/internal/logging"
)

var log = logging.For("historymirror")

// Config controls the Redis stream a guild's turns are mirrored into.
type Config struct {
	Addr     string
	Password string
	MaxLen   int64 // approximate XADD MAXLEN; 0 means unbounded
}

// Mirror appends conversation turns to a per-guild Redis stream,
// fire-and-forget: a write failure is logged, never returned to the
// caller, since losing a mirrored turn must never interrupt a live voice
// session.
type Mirror struct {
	client *redis.Client
	maxLen int64
}

// New connects to Redis eagerly; callers should treat a non-nil error as
// "don't mirror this deployment" rather than failing startup over it.
func New(cfg Config) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Mirror{client: client, maxLen: cfg.MaxLen}, nil
}

// ForGuild returns an append callback suitable for conversation.History.OnAppend,
// appending each turn to guildID's own stream ("voiceagent:history:<guildID>")
// with a fresh uuid in its "id" field; Redis assigns the stream entry id.
func (m *Mirror) ForGuild(guildID string) func(conversation.Turn) {
	streamKey := "voiceagent:history:" + guildID
	return func(t conversation.Turn) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		args := &redis.XAddArgs{
			Stream: streamKey,
			Values: map[string]any{
				"id":          uuid.NewString(),
				"role":        string(t.Role),
				"userId":      t.UserID,
				"displayName": t.DisplayName,
				"content":     t.Content,
				"timestampMs": t.TimestampMS,
			},
		}
		if m.maxLen > 0 {
			args.MaxLen = m.maxLen
			args.Approx = true
		}
		if err := m.client.XAdd(ctx, args).Err(); err != nil {
			log.WithField("guild", guildID).Warnf("history mirror write failed: %v", err)
		}
	}
}

// Close releases the underlying Redis connection pool.
func (m *Mirror) Close() error {
	return m.client.Close()
}
