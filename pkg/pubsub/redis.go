package pubsub

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBus publishes through Redis so every process serving live sessions
// sees every event. One pattern subscription relays into a local MemoryBus.
type RedisBus struct {
	client *redis.Client
	prefix string
	local  *MemoryBus
	ps     *redis.PubSub

	closeOnce sync.Once
	done      chan struct{}
}

func NewRedisBus(ctx context.Context, client *redis.Client, cfg Config) (*RedisBus, error) {
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	ps := client.PSubscribe(ctx, prefix+"*")
	// 等待订阅确认，避免丢失启动后的第一批消息
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	b := &RedisBus{
		client: client,
		prefix: prefix,
		local:  NewMemoryBus(cfg.BufferSize),
		ps:     ps,
		done:   make(chan struct{}),
	}
	go b.relay()
	return b, nil
}

// WithObserver installs delivery hooks on the local fan-out.
func (b *RedisBus) WithObserver(o Observer) *RedisBus {
	b.local.WithObserver(o)
	return b
}

func (b *RedisBus) relay() {
	defer close(b.done)
	for msg := range b.ps.Channel() {
		topic := strings.TrimPrefix(msg.Channel, b.prefix)
		if err := b.local.Publish(context.Background(), topic, []byte(msg.Payload)); err != nil {
			logrus.Warnf("redis relay dropped message for topic %s: %v", topic, err)
		}
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, b.prefix+topic, payload).Err()
}

func (b *RedisBus) Subscribe(topic string) (*Subscription, error) {
	return b.local.Subscribe(topic)
}

func (b *RedisBus) Subscribers(topic string) int {
	return b.local.Subscribers(topic)
}

func (b *RedisBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.ps.Close()
		<-b.done
		_ = b.local.Close()
	})
	return err
}

// New builds the bus selected by cfg.Type. client is only needed for redis.
func New(ctx context.Context, cfg Config, client *redis.Client, observer Observer) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "", TypeMemory:
		return NewMemoryBus(cfg.BufferSize).WithObserver(observer), nil
	case TypeRedis:
		if client == nil {
			return nil, fmt.Errorf("pubsub: redis bus requires a redis client")
		}
		b, err := NewRedisBus(ctx, client, cfg)
		if err != nil {
			return nil, err
		}
		return b.WithObserver(observer), nil
	default:
		return nil, fmt.Errorf("pubsub: unsupported bus type %q", cfg.Type)
	}
}
