package live

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type countingObserver struct {
	mu            sync.Mutex
	subscriptions int
	delivered     map[string]int
	dropped       map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{delivered: map[string]int{}, dropped: map[string]int{}}
}

func (o *countingObserver) SetSubscriptions(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscriptions = n
}

func (o *countingObserver) EventPublished(kind string, delivered, dropped int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered[kind] += delivered
	o.dropped[kind] += dropped
}

func receive(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestHub_DeliversToTopicMembersOnly(t *testing.T) {
	hub := NewHub(quietLogger())
	a, b, c := hub.NewSubscriber(), hub.NewSubscriber(), hub.NewSubscriber()

	hub.Subscribe("birthday", a)
	hub.Subscribe("birthday", b)
	hub.Subscribe("wedding", c)

	ev := Event{Kind: KindContributionCreated, Topic: "birthday", ItemID: 7}
	hub.Publish(context.Background(), ev)

	assert.Equal(t, ev, receive(t, a))
	assert.Equal(t, ev, receive(t, b))
	assertNoEvent(t, c)
}

func TestHub_SubscribeIsIdempotent(t *testing.T) {
	obs := newCountingObserver()
	hub := NewHub(quietLogger(), WithObserver(obs))
	sub := hub.NewSubscriber()

	hub.Subscribe("list", sub)
	hub.Subscribe("list", sub)
	assert.Equal(t, 1, hub.Subscribers("list"))
	assert.Equal(t, 1, obs.subscriptions)

	hub.Publish(context.Background(), Event{Kind: KindItemAdded, Topic: "list", ItemID: 1})
	receive(t, sub)
	assertNoEvent(t, sub)

	hub.Unsubscribe("list", sub)
	hub.Unsubscribe("list", sub)
	hub.Unsubscribe("unknown", sub)
	assert.Zero(t, hub.Subscribers("list"))
	assert.Zero(t, hub.Topics())
	assert.Zero(t, obs.subscriptions)
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	hub := NewHub(quietLogger())
	sub := hub.NewSubscriber()

	hub.Subscribe("list", sub)
	hub.Unsubscribe("list", sub)
	hub.Publish(context.Background(), Event{Kind: KindReservationCreated, Topic: "list", ItemID: 3})

	assertNoEvent(t, sub)
}

func TestHub_UnsubscribeAll(t *testing.T) {
	hub := NewHub(quietLogger())
	sub, other := hub.NewSubscriber(), hub.NewSubscriber()

	for _, topic := range []string{"a", "b", "c"} {
		hub.Subscribe(topic, sub)
	}
	hub.Subscribe("a", other)

	hub.UnsubscribeAll(sub)

	assert.Equal(t, 1, hub.Topics())
	assert.Equal(t, 1, hub.Subscribers("a"))
	assert.Zero(t, hub.Subscribers("b"))
}

func TestHub_SlowSubscriberMissesEvents(t *testing.T) {
	obs := newCountingObserver()
	hub := NewHub(quietLogger(), WithBuffer(2), WithObserver(obs))
	slow, fast := hub.NewSubscriber(), hub.NewSubscriber()
	hub.Subscribe("list", slow)
	hub.Subscribe("list", fast)

	// Publish never blocks even though slow is not being drained.
	for i := 0; i < 5; i++ {
		hub.Publish(context.Background(), Event{Kind: KindItemAdded, Topic: "list", ItemID: int64(i)})
		receive(t, fast)
	}

	assert.Len(t, slow.Events(), 2)
	require.Equal(t, 7, obs.delivered[string(KindItemAdded)])
	assert.Equal(t, 3, obs.dropped[string(KindItemAdded)])
}

func TestHub_ConcurrentMembershipChanges(t *testing.T) {
	hub := NewHub(quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := hub.NewSubscriber()
			for j := 0; j < 50; j++ {
				hub.Subscribe("list", sub)
				hub.Publish(context.Background(), Event{Kind: KindItemAdded, Topic: "list"})
				hub.Unsubscribe("list", sub)
			}
			hub.UnsubscribeAll(sub)
		}()
	}
	wg.Wait()

	assert.Zero(t, hub.Topics())
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent([]byte(`{"type":"reservation_created","topic":"abc","item_id":5}`))
	require.NoError(t, err)
	assert.Equal(t, Event{Kind: KindReservationCreated, Topic: "abc", ItemID: 5}, ev)

	_, err = decodeEvent([]byte(`{"type":"reservation_created","item_id":5}`))
	assert.Error(t, err)

	_, err = decodeEvent([]byte(`{"type":"guest_revealed","topic":"abc"}`))
	assert.Error(t, err)

	_, err = decodeEvent([]byte(`not json`))
	assert.Error(t, err)
}
