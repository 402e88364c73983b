package relay

import (
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

// Feed names published by BucketSpy.
const (
	FeedBadge   = "badge"
	FeedCapture = "capture"
)

// Event is a single message on a feed. Payload is JSON.
type Event struct {
	Feed    string
	Payload string
}

// Broker fans out events to all subscribed stream clients. The latest event
// of each feed is retained so that late subscribers start from current state.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	latest      map[string]Event
	nextID      atomic.Int64
	replay      map[string]bool
}

// NewBroker creates a broker that replays the last event of each feed in
// replayFeeds to new subscribers.
func NewBroker(replayFeeds ...string) *Broker {
	replay := make(map[string]bool, len(replayFeeds))
	for _, f := range replayFeeds {
		replay[f] = true
	}
	return &Broker{
		subscribers: make(map[int64]chan Event),
		latest:      make(map[string]Event),
		replay:      replay,
	}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers will have
// events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)

	b.mu.Lock()
	for _, evt := range b.latest {
		ch <- evt
	}
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Non-blocking: slow clients
// have events dropped.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.replay[evt.Feed] {
		b.latest[evt.Feed] = evt
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close disconnects every subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
