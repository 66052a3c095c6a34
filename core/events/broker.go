package events

import (
	"context"
	"sync"
)

const (
	// subscriberBuffer bounds the per-subscriber channel. A subscriber that
	// falls further behind than this starts losing events rather than
	// stalling the publisher.
	subscriberBuffer = 64
	// backlogLimit bounds the replay window handed to new subscribers.
	backlogLimit = 256
)

// Broker fans committed events out to live subscribers and keeps a bounded
// backlog so a reconnecting stream can catch up on recent history.
type Broker struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]chan Envelope
	backlog []Envelope
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]chan Envelope)}
}

// Publish delivers the envelope to every subscriber. Delivery is best-effort:
// a full subscriber channel drops the event for that subscriber only.
func (b *Broker) Publish(env Envelope) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backlog = append(b.backlog, env)
	if len(b.backlog) > backlogLimit {
		b.backlog = b.backlog[len(b.backlog)-backlogLimit:]
	}
	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
		}
	}
}

// Subscribe registers a new subscriber. It returns the live channel, a cancel
// function that must be called exactly once, and a snapshot of the backlog
// accumulated before this subscription. The channel is closed either by
// cancel or when ctx ends.
func (b *Broker) Subscribe(ctx context.Context) (<-chan Envelope, func(), []Envelope) {
	if b == nil {
		closed := make(chan Envelope)
		close(closed)
		return closed, func() {}, nil
	}
	ch := make(chan Envelope, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	backlog := make([]Envelope, len(b.backlog))
	copy(backlog, b.backlog)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if existing, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(existing)
			}
			b.mu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return ch, cancel, backlog
}

// Subscribers reports the number of attached subscribers.
func (b *Broker) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
