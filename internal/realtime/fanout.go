package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"social_platform/pkg/logger"
)

// fanoutMessage is what travels on the Redis channel. A nil UserID means
// every connected user.
type fanoutMessage struct {
	UserID *uuid.UUID      `json:"user_id,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisFanout spreads events across server instances. Every instance
// publishes to one channel and delivers what it receives to its own Gateway,
// so a user connected anywhere gets the event.
type RedisFanout struct {
	client  *redis.Client
	channel string
	local   *Gateway
	log     logger.Logger
}

func NewRedisFanout(client *redis.Client, channel string, local *Gateway, log logger.Logger) *RedisFanout {
	return &RedisFanout{
		client:  client,
		channel: channel,
		local:   local,
		log:     log,
	}
}

func (f *RedisFanout) EmitToUser(ctx context.Context, userID uuid.UUID, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		f.log.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	id := userID
	f.publish(ctx, fanoutMessage{UserID: &id, Frame: frame})
}

func (f *RedisFanout) Broadcast(ctx context.Context, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		f.log.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	f.publish(ctx, fanoutMessage{Frame: frame})
}

// publish falls back to local delivery when Redis is unreachable, so users
// on this instance still get the event.
func (f *RedisFanout) publish(ctx context.Context, msg fanoutMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		f.log.Error("Failed to encode fanout message", "error", err)
		return
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		f.log.Warn("Failed to publish event, delivering locally", "channel", f.channel, "error", err)
		f.deliver(msg)
	}
}

func (f *RedisFanout) deliver(msg fanoutMessage) {
	if msg.UserID == nil {
		f.local.deliverToAll(msg.Frame)
		return
	}
	f.local.deliverToUser(*msg.UserID, msg.Frame)
}

// Run subscribes to the channel and delivers incoming events to the local
// Gateway until ctx is cancelled.
func (f *RedisFanout) Run(ctx context.Context) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	f.log.Info("Realtime fanout subscribed", "channel", f.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg fanoutMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				f.log.Warn("Skipping malformed fanout message", "error", err)
				continue
			}
			f.deliver(msg)
		}
	}
}
