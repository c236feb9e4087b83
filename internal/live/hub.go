// Package live fans out "list changed" notifications to every viewer of a
// wishlist. Delivery is best effort: an event is a hint to re-fetch the list,
// never a delta, so a missed event only delays a refresh.
package live

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Kind identifies what changed in a list.
type Kind string

const (
	KindItemAdded           Kind = "item_added"
	KindReservationCreated  Kind = "reservation_created"
	KindContributionCreated Kind = "contribution_created"
)

// Event is the only payload pushed to subscribers. It deliberately carries
// nothing beyond the topic and item: viewers re-fetch the projected list.
type Event struct {
	Kind   Kind   `json:"type"`
	Topic  string `json:"topic"`
	ItemID int64  `json:"item_id"`
}

// Publisher broadcasts events. Implementations never block on slow
// subscribers and never fail the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Observer receives fan-out statistics.
type Observer interface {
	SetSubscriptions(n int)
	EventPublished(kind string, delivered, dropped int)
}

const defaultBuffer = 16

// Subscriber is a handle for one connected viewer.
type Subscriber struct {
	id     uint64
	events chan Event
}

// Events returns the channel the subscriber's events are delivered on. The
// channel is never closed.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Hub keeps topic membership in memory and delivers events locally.
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[*Subscriber]struct{}
	count    int
	nextID   atomic.Uint64
	buffer   int
	logger   *logrus.Logger
	observer Observer
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber event buffer.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithObserver attaches a statistics observer.
func WithObserver(o Observer) Option {
	return func(h *Hub) { h.observer = o }
}

// NewHub creates an empty hub.
func NewHub(logger *logrus.Logger, opts ...Option) *Hub {
	h := &Hub{
		topics: make(map[string]map[*Subscriber]struct{}),
		buffer: defaultBuffer,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewSubscriber creates a handle that can join topics.
func (h *Hub) NewSubscriber() *Subscriber {
	return &Subscriber{
		id:     h.nextID.Add(1),
		events: make(chan Event, h.buffer),
	}
}

// Subscribe adds sub to topic. Subscribing twice is a no-op.
func (h *Hub) Subscribe(topic string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.topics[topic]
	if !ok {
		members = make(map[*Subscriber]struct{})
		h.topics[topic] = members
	}
	if _, ok := members[sub]; ok {
		return
	}
	members[sub] = struct{}{}
	h.count++
	h.observe()
}

// Unsubscribe removes sub from topic. Unknown pairs are ignored.
func (h *Hub) Unsubscribe(topic string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.remove(topic, sub)
	h.observe()
}

// UnsubscribeAll removes sub from every topic. Called when a connection
// drops.
func (h *Hub) UnsubscribeAll(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic := range h.topics {
		h.remove(topic, sub)
	}
	h.observe()
}

func (h *Hub) remove(topic string, sub *Subscriber) {
	members, ok := h.topics[topic]
	if !ok {
		return
	}
	if _, ok := members[sub]; !ok {
		return
	}
	delete(members, sub)
	h.count--
	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

// must hold h.mu
func (h *Hub) observe() {
	if h.observer != nil {
		h.observer.SetSubscriptions(h.count)
	}
}

// Subscribers returns the number of subscribers of topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Topics returns the number of topics with at least one subscriber.
func (h *Hub) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

// Publish delivers ev to every current subscriber of ev.Topic. Subscribers
// whose buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, ev Event) {
	h.mu.RLock()
	delivered, dropped := 0, 0
	for sub := range h.topics[ev.Topic] {
		select {
		case sub.events <- ev:
			delivered++
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if dropped > 0 {
		h.logger.WithFields(logrus.Fields{
			"topic":   ev.Topic,
			"type":    ev.Kind,
			"dropped": dropped,
		}).Warn("live event dropped for slow subscribers")
	}
	if h.observer != nil {
		h.observer.EventPublished(string(ev.Kind), delivered, dropped)
	}
}
