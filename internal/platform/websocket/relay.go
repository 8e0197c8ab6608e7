package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisRelay shares events between server instances over a Redis pub/sub
// channel. Publish delivers to the local hub immediately; Run delivers
// events published by other instances.
type RedisRelay struct {
	rdb     redis.UniversalClient
	channel string
	hub     *Hub
	origin  string
	logger  zerolog.Logger
}

type relayEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

func NewRedisRelay(rdb redis.UniversalClient, channel string, hub *Hub, logger zerolog.Logger) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		origin:  uuid.New().String(),
		logger:  logger,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, event Event) error {
	r.hub.Broadcast(event)

	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Event: event})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("relay event: %w", err)
	}
	return nil
}

// Run subscribes to the channel until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info().Str("channel", r.channel).Msg("websocket relay subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.deliver(msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn().Err(err).Msg("websocket relay: malformed message")
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.hub.Broadcast(env.Event)
}
