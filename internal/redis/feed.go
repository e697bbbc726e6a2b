package redis

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/feed"
)

// FeedStore implements the change feed over Redis pub/sub.
type FeedStore struct {
	client *redis.Client
}

// NewFeedStore creates a new FeedStore.
func NewFeedStore(client *redis.Client) *FeedStore {
	return &FeedStore{client: client}
}

// Publish sends an event to a channel.
func (s *FeedStore) Publish(ctx context.Context, channel string, ev feed.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

// Subscribe opens a subscription to a channel. The returned handle is owned
// by the caller; Close releases the underlying pub/sub connection.
func (s *FeedStore) Subscribe(ctx context.Context, channel string) (feed.Subscription, error) {
	ps := s.client.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so events published after
	// Subscribe returns are not missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &feedSubscription{
		ps:     ps,
		events: make(chan feed.Event, 16),
		done:   make(chan struct{}),
	}
	go sub.loop()

	return sub, nil
}

type feedSubscription struct {
	ps        *redis.PubSub
	events    chan feed.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *feedSubscription) Events() <-chan feed.Event {
	return s.events
}

func (s *feedSubscription) Close() error {
	// done unblocks a delivery stuck on a full buffer; closing the PubSub
	// closes its message channel, which ends loop.
	s.closeOnce.Do(func() { close(s.done) })
	return s.ps.Close()
}

func (s *feedSubscription) loop() {
	defer close(s.events)

	for msg := range s.ps.Channel() {
		var ev feed.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			// Malformed payloads are dropped; the poll path covers the gap.
			continue
		}
		if !s.deliver(ev) {
			return
		}
	}
}

// deliver hands an event to the consumer. Returns false once the
// subscription is closed, so a consumer that stopped reading does not strand
// this goroutine on a full buffer.
func (s *feedSubscription) deliver(ev feed.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}
