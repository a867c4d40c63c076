package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/logger"
)

const eventChannel = "room_events"

// envelope carries a chat.Event through Redis. ExcludeUser is not part of the
// event's JSON, so the bridge carries it alongside.
type envelope struct {
	RoomID      string     `json:"room_id"`
	Event       chat.Event `json:"event"`
	ExcludeUser string     `json:"exclude_user,omitempty"`
}

// RedisRelay bridges room events across instances: Publish pushes onto a
// Redis channel, Run delivers received events into the local hub. With one
// instance the hub can be used as the Broadcaster directly.
type RedisRelay struct {
	cli   *redis.Client
	local *Hub
}

func NewRedisRelay(ctx context.Context, url string, local *Hub) (*RedisRelay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("relay parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("relay ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("relay ping: %w", err)
	}
	return &RedisRelay{cli: cli, local: local}, nil
}

func (r *RedisRelay) Close() error {
	return r.cli.Close()
}

// Publish sends the event to all instances via Redis. Best-effort: a publish
// failure is logged, never surfaced to the triggering mutation.
func (r *RedisRelay) Publish(roomID string, ev chat.Event) {
	data, err := json.Marshal(envelope{RoomID: roomID, Event: ev, ExcludeUser: ev.ExcludeUser})
	if err != nil {
		logger.Errorf("relay marshal room=%s: %v", roomID, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := r.cli.Publish(ctx, eventChannel, data).Err(); err != nil {
			logger.Errorf("relay publish room=%s: %v", roomID, err)
		}
	}()
}

// Run consumes the Redis channel and fans events into the local hub. Blocks
// until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.cli.Subscribe(ctx, eventChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Errorf("relay unmarshal: %v", err)
				continue
			}
			env.Event.ExcludeUser = env.ExcludeUser
			r.local.Publish(env.RoomID, env.Event)
		}
	}
}
