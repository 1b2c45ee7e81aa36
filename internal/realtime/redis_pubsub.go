package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "media:"
	publishTimeout = 5 * time.Second

	// EventTranscriptionStatus is the event name for status transitions.
	EventTranscriptionStatus = "transcription_status"
)

// redisPayload is the message published to Redis for cross-instance broadcast.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// StatusEvent is the payload for transcription status transitions.
type StatusEvent struct {
	ItemID uuid.UUID `json:"item_id"`
	Status string    `json:"status"`
}

// RedisPubSub bridges media item events through Redis pub/sub so the
// worker binary and every server instance see the same stream.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for media item events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishStatus implements transcribe.Notifier: status transitions go out
// on the item's channel. Publish failures are logged, never propagated;
// the pipeline's own outcome must not depend on event delivery.
func (r *RedisPubSub) PublishStatus(ctx context.Context, itemID uuid.UUID, status string) {
	data, err := json.Marshal(StatusEvent{ItemID: itemID, Status: status})
	if err != nil {
		return
	}
	if err := r.PublishMediaEvent(itemID, EventTranscriptionStatus, data); err != nil {
		r.logger.Warn("publish status event failed",
			zap.String("item_id", itemID.String()), zap.String("status", status), zap.Error(err))
	}
}

// PublishMediaEvent publishes an event to the media item's Redis channel.
func (r *RedisPubSub) PublishMediaEvent(itemID uuid.UUID, event string, payload []byte) error {
	channel := channelPrefix + itemID.String()
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channel, body).Err()
}

// SubscribeMedia subscribes to a media item's Redis channel and calls
// handler for each message. Returns a cancel function to stop the
// subscription.
func (r *RedisPubSub) SubscribeMedia(itemID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	channel := channelPrefix + itemID.String()
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	_, err = pubsub.Receive(ctx)
	if err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
