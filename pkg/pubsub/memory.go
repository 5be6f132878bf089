package pubsub

import (
	"context"
	"sync"
)

// MemoryBus keeps membership in process.
type MemoryBus struct {
	mu         sync.RWMutex
	topics     map[string]map[string]*Subscription
	bufferSize int
	observer   Observer
	closed     bool
}

func NewMemoryBus(bufferSize int) *MemoryBus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &MemoryBus{
		topics:     make(map[string]map[string]*Subscription),
		bufferSize: bufferSize,
	}
}

// WithObserver installs delivery hooks. Call before the bus is shared.
func (b *MemoryBus) WithObserver(o Observer) *MemoryBus {
	b.observer = o
	return b
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	delivered := 0
	for _, sub := range b.topics[topic] {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			// 慢消费者只丢自己的消息
			sub.dropped.Add(1)
			if b.observer != nil {
				b.observer.OnDrop(topic)
			}
		}
	}
	if b.observer != nil {
		b.observer.OnPublish(topic, delivered)
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := newSubscription(topic, b.bufferSize, b.leave)
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*Subscription)
	}
	b.topics[topic][sub.ID] = sub
	return sub, nil
}

func (b *MemoryBus) leave(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	members, ok := b.topics[sub.Topic]
	if !ok {
		return
	}
	if _, ok := members[sub.ID]; !ok {
		return
	}
	delete(members, sub.ID)
	if len(members) == 0 {
		delete(b.topics, sub.Topic)
	}
	close(sub.ch)
}

func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close ends every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, members := range b.topics {
		for _, sub := range members {
			close(sub.ch)
		}
		delete(b.topics, topic)
	}
	return nil
}
