package redis

import (
	"testing"
	"time"

	"dispatch/internal/feed"
)

// A consumer that stops reading must not strand the delivery goroutine on a
// full buffer once the subscription is closed.
func TestFeedSubscriptionDeliverUnblocksOnClose(t *testing.T) {
	sub := &feedSubscription{
		events: make(chan feed.Event, 1),
		done:   make(chan struct{}),
	}
	sub.events <- feed.Event{} // fill the buffer; nobody is reading

	delivered := make(chan bool, 1)
	go func() { delivered <- sub.deliver(feed.Event{}) }()

	select {
	case <-delivered:
		t.Fatal("deliver returned with the buffer full and the subscription open")
	case <-time.After(50 * time.Millisecond):
	}

	close(sub.done)

	select {
	case ok := <-delivered:
		if ok {
			t.Fatal("deliver reported success after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("deliver still blocked after close")
	}
}
