// Package events is the in-process pub/sub feed of assessment outcomes.
// The dashboard stats read-model subscribes here instead of tailing the
// ledger file on every request.
package events

import "sync"

// VerdictEvent is one completed assessment, as seen by the outermost
// pipeline layer.
type VerdictEvent struct {
	Timestamp  int64   `json:"timestamp"`
	Path       string  `json:"path"`
	Method     string  `json:"method"`
	ClientIP   string  `json:"client_ip"`
	StatusCode int     `json:"status_code"`
	LatencyMS  float64 `json:"latency_ms"`
	Allowed    bool    `json:"allowed"`
}

// Bus fans VerdictEvents out to subscribers. Delivery is best-effort: a
// subscriber that stops draining loses events rather than stalling the
// pipeline.
type Bus struct {
	mu         sync.RWMutex
	subs       []chan VerdictEvent
	bufferSize int
}

func NewBus() *Bus {
	return &Bus{bufferSize: 100}
}

// Subscribe returns a channel receiving every published event.
func (b *Bus) Subscribe() chan VerdictEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan VerdictEvent, b.bufferSize)
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (b *Bus) Unsubscribe(ch chan VerdictEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	filtered := b.subs[:0]
	for _, s := range b.subs {
		if s != ch {
			filtered = append(filtered, s)
		}
	}
	b.subs = filtered
	close(ch)
}

// Publish delivers the event to all subscribers without blocking.
func (b *Bus) Publish(e VerdictEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
