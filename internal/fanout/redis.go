package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"course-chat/internal/observability"
	"course-chat/pkg/chatapi"
)

const channelPrefix = "room-inserts:"

// RedisNotifier relays inserts through Redis pub/sub so that every instance
// behind a load balancer can push to its own subscribers.
type RedisNotifier struct {
	client *redis.Client
	hub    Broadcaster
	logger zerolog.Logger
}

// NewRedisNotifier connects to redisURL and verifies the connection.
func NewRedisNotifier(ctx context.Context, redisURL string, hub Broadcaster, logger zerolog.Logger) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisNotifier{client: client, hub: hub, logger: logger}, nil
}

func channelFor(roomID string) string {
	return channelPrefix + roomID
}

// Publish sends msg to the room's channel. Local delivery happens when the
// message comes back through Run.
func (n *RedisNotifier) Publish(ctx context.Context, msg chatapi.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := n.client.Publish(ctx, channelFor(msg.RoomID), body).Err(); err != nil {
		observability.IncFanoutError("redis")
		return fmt.Errorf("publish insert: %w", err)
	}
	return nil
}

// Run forwards inserts from every room channel to the local hub until ctx is
// cancelled.
func (n *RedisNotifier) Run(ctx context.Context) error {
	pubsub := n.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe inserts: %w", err)
	}
	n.logger.Info().Str("pattern", channelPrefix+"*").Msg("redis fanout subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			n.handle(m.Channel, m.Payload)
		}
	}
}

func (n *RedisNotifier) handle(channel, payload string) {
	roomID := strings.TrimPrefix(channel, channelPrefix)

	var msg chatapi.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		observability.IncFanoutError("redis")
		n.logger.Warn().Err(err).Str("channel", channel).Msg("drop malformed insert")
		return
	}
	if msg.RoomID != roomID {
		n.logger.Warn().Str("channel", channel).Str("room_id", msg.RoomID).Msg("drop insert for foreign room")
		return
	}
	n.hub.BroadcastMessage(roomID, msg)
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
