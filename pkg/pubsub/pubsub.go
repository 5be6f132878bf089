// Package pubsub fans alert events out to live sessions, one topic per organization.
//
// Delivery is best effort: no persistence, no replay for late joiners and no
// acknowledgements. A subscriber whose buffer is full misses the message.
package pubsub

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("pubsub: bus closed")

const (
	TypeMemory = "memory"
	TypeRedis  = "redis"

	DefaultBufferSize    = 64
	DefaultChannelPrefix = "alertdesk:org:"
)

// Bus is a topic based broadcast channel.
type Bus interface {
	// Publish delivers payload to every current subscriber of topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe joins topic. Close the subscription to leave.
	Subscribe(topic string) (*Subscription, error)
	// Subscribers counts local subscribers of topic.
	Subscribers(topic string) int
	Close() error
}

// Observer receives delivery statistics.
type Observer interface {
	OnPublish(topic string, delivered int)
	OnDrop(topic string)
}

// Config selects and tunes the bus implementation.
type Config struct {
	Type          string `env:"BUS_TYPE"`
	BufferSize    int    `env:"BUS_BUFFER_SIZE"`
	ChannelPrefix string `env:"BUS_CHANNEL_PREFIX"`
}

// OrganizationTopic is the topic carrying one organization's alerts.
func OrganizationTopic(organizationID uint) string {
	return strconv.FormatUint(uint64(organizationID), 10)
}

// ParseOrganizationTopic is the inverse of OrganizationTopic.
func ParseOrganizationTopic(topic string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(topic), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Subscription is one member of a topic.
type Subscription struct {
	ID    string
	Topic string

	ch      chan []byte
	dropped atomic.Int64
	once    sync.Once
	leave   func(*Subscription)
}

func newSubscription(topic string, size int, leave func(*Subscription)) *Subscription {
	return &Subscription{
		ID:    uuid.NewString(),
		Topic: topic,
		ch:    make(chan []byte, size),
		leave: leave,
	}
}

// Messages yields payloads in publish order. It is closed after Close.
func (s *Subscription) Messages() <-chan []byte { return s.ch }

// Dropped counts payloads lost because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close leaves the topic. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.leave != nil {
			s.leave(s)
		}
	})
}
