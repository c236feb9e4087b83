package live

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func TestRedisBridge_FallsBackToLocalDelivery(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	hub := NewHub(quietLogger())
	sub := hub.NewSubscriber()
	hub.Subscribe("list", sub)

	bridge := NewRedisBridge(client, hub, quietLogger())
	ev := Event{Kind: KindReservationCreated, Topic: "list", ItemID: 9}
	bridge.Publish(context.Background(), ev)

	assert.Equal(t, ev, receive(t, sub))
}

func TestRedisBridge_RunFailsWithoutRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := NewRedisBridge(client, NewHub(quietLogger()), quietLogger()).Run(ctx)
	assert.Error(t, err)
}

func TestRedisBridge_DeliversOnceWhileNotSubscribed(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	hub := NewHub(quietLogger())
	sub := hub.NewSubscriber()
	hub.Subscribe("list", sub)

	bridge := NewRedisBridge(client, hub, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, bridge.Run(ctx))
	assert.False(t, bridge.Running(), "a failed Run must leave the bridge in local mode")

	ev := Event{Kind: KindItemAdded, Topic: "list", ItemID: 3}
	bridge.Publish(context.Background(), ev)

	assert.Equal(t, ev, receive(t, sub))
	assertNoEvent(t, sub)
}
