// Package events is the in-process pub/sub bus connecting the feed,
// the coordinator, the monitor and the API websocket.
package events

import (
	"log"
	"sync"
)

const subscriberBuffer = 256

// Bus fans events out to subscribers by topic. Publish never blocks:
// a subscriber that falls behind loses events rather than stalling the
// trading path.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]chan any
	closed bool
}

// NewBus builds an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan any)}
}

// Subscribe registers for a topic. The returned function removes the
// subscription and closes the channel; call it exactly once.
func (b *Bus) Subscribe(topic string) (<-chan any, func()) {
	ch := make(chan any, subscriberBuffer)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			for i, c := range list {
				if c == ch {
					b.subs[topic] = append(list[:i], list[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers an event to every subscriber of the topic,
// dropping it for subscribers whose buffers are full.
func (b *Bus) Publish(topic string, event any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- event:
		default:
			log.Printf("events: dropped %s event for slow subscriber", topic)
		}
	}
}

// Close shuts the bus down; further publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, list := range b.subs {
		for _, ch := range list {
			close(ch)
		}
		delete(b.subs, topic)
	}
}
