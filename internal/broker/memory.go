package broker

import (
	"context"
	"sync"
	"time"
)

// DelayedPublishing is a Publishing recorded with its requested delay.
type DelayedPublishing struct {
	Queue string
	Delay time.Duration
	Publishing
}

// MemoryBroker is an in-process Publisher for tests. It records everything
// published and counts acknowledgments per delivery id.
type MemoryBroker struct {
	mu        sync.Mutex
	published map[string][]Publishing
	delayed   []DelayedPublishing
	acks      map[string]int
}

// NewMemoryBroker returns an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		published: make(map[string][]Publishing),
		acks:      make(map[string]int),
	}
}

// Publish records the publication.
func (b *MemoryBroker) Publish(_ context.Context, queue string, pub Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[queue] = append(b.published[queue], pub)
	return nil
}

// PublishDelayed records the publication with its delay.
func (b *MemoryBroker) PublishDelayed(_ context.Context, queue string, pub Publishing, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delayed = append(b.delayed, DelayedPublishing{Queue: queue, Delay: delay, Publishing: pub})
	return nil
}

// Deliver creates a Delivery whose Ack is counted by the broker.
func (b *MemoryBroker) Deliver(id string, body []byte, h Headers) *Delivery {
	return NewDelivery(id, body, h, func(context.Context) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.acks[id]++
		return nil
	})
}

// Published returns everything published to the queue.
func (b *MemoryBroker) Published(queue string) []Publishing {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Publishing(nil), b.published[queue]...)
}

// Delayed returns everything scheduled for delayed re-delivery.
func (b *MemoryBroker) Delayed() []DelayedPublishing {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DelayedPublishing(nil), b.delayed...)
}

// AckCount returns how many times the delivery id was acknowledged.
func (b *MemoryBroker) AckCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks[id]
}
