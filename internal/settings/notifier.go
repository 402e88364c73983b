package settings

import "sync"

const subscriberBufSize = 16

// notifier fans out changes to subscribers. Slow subscribers drop changes
// rather than blocking writers.
type notifier struct {
	mu     sync.Mutex
	subs   map[int]chan Change
	nextID int
}

func (n *notifier) subscribe() (<-chan Change, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]chan Change)
	}
	n.nextID++
	id := n.nextID
	ch := make(chan Change, subscriberBufSize)
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(c)
			}
		})
	}
}

func (n *notifier) publish(c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
