package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// DefaultRedisChannel is the pub/sub channel shared by all instances.
const DefaultRedisChannel = "giftlist:live"

var errSubscriptionClosed = errors.New("redis subscription closed")

// RedisBridge relays events through Redis pub/sub so that viewers connected
// to any instance are notified. Every instance runs the bridge; local
// subscribers are served from the Redis subscription, including for events
// this instance published. While the subscription is down, local
// subscribers are served directly.
type RedisBridge struct {
	client  *redis.Client
	hub     *Hub
	channel string
	logger  *logrus.Logger
	running atomic.Bool
}

// NewRedisBridge creates a bridge from client to hub.
func NewRedisBridge(client *redis.Client, hub *Hub, logger *logrus.Logger) *RedisBridge {
	return &RedisBridge{
		client:  client,
		hub:     hub,
		channel: DefaultRedisChannel,
		logger:  logger,
	}
}

// Publish sends ev to every instance. When Redis is unreachable the event is
// still delivered to this instance's subscribers.
func (b *RedisBridge) Publish(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.WithError(err).Error("failed to encode live event")
		return
	}

	// Without a live subscription the event would never come back to this
	// instance, so deliver it here and still relay it to the others.
	local := !b.Running()
	if local {
		b.hub.Publish(ctx, ev)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.WithError(err).WithField("topic", ev.Topic).Warn("redis publish failed, delivering locally")
		if !local {
			b.hub.Publish(ctx, ev)
		}
	}
}

// Running reports whether Run holds a live Redis subscription.
func (b *RedisBridge) Running() bool {
	return b.running.Load()
}

// Run consumes the Redis channel until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.WithField("channel", b.channel).Info("Live update bridge subscribed")

	b.running.Store(true)
	defer b.running.Store(false)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			ev, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				b.logger.WithError(err).Warn("ignoring malformed live event")
				continue
			}
			b.hub.Publish(ctx, ev)
		}
	}
}

func decodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	if ev.Topic == "" {
		return Event{}, fmt.Errorf("event without topic")
	}
	switch ev.Kind {
	case KindItemAdded, KindReservationCreated, KindContributionCreated:
	default:
		return Event{}, fmt.Errorf("unknown event type %q", ev.Kind)
	}
	return ev, nil
}
