package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu        sync.Mutex
	delivered map[string]int
	drops     map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{delivered: map[string]int{}, drops: map[string]int{}}
}

func (o *countingObserver) OnPublish(topic string, n int) {
	o.mu.Lock()
	o.delivered[topic] += n
	o.mu.Unlock()
}

func (o *countingObserver) OnDrop(topic string) {
	o.mu.Lock()
	o.drops[topic]++
	o.mu.Unlock()
}

func recv(t *testing.T, sub *Subscription) []byte {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestMemoryBusTenantIsolation(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()
	ctx := context.Background()

	org1, err := bus.Subscribe(OrganizationTopic(1))
	require.NoError(t, err)
	org2, err := bus.Subscribe(OrganizationTopic(2))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, OrganizationTopic(1), []byte(`{"id":1}`)))
	assert.Equal(t, `{"id":1}`, string(recv(t, org1)))

	select {
	case msg := <-org2.Messages():
		t.Fatalf("org 2 received a message for org 1: %s", msg)
	default:
	}
}

func TestMemoryBusPreservesPublishOrder(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()

	sub, err := bus.Subscribe("7")
	require.NoError(t, err)
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(context.Background(), "7", []byte(p)))
	}
	assert.Equal(t, "a", string(recv(t, sub)))
	assert.Equal(t, "b", string(recv(t, sub)))
	assert.Equal(t, "c", string(recv(t, sub)))
}

func TestMemoryBusNoReplayForLateJoiners(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()

	require.NoError(t, bus.Publish(context.Background(), "1", []byte("before")))
	sub, err := bus.Subscribe("1")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), "1", []byte("after")))

	assert.Equal(t, "after", string(recv(t, sub)))
}

func TestMemoryBusDropsWhenSubscriberIsFull(t *testing.T) {
	obs := newCountingObserver()
	bus := NewMemoryBus(1).WithObserver(obs)
	defer bus.Close()

	slow, err := bus.Subscribe("1")
	require.NoError(t, err)
	fast, err := bus.Subscribe("1")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "1", []byte("first")))
	assert.Equal(t, "first", string(recv(t, fast)))
	require.NoError(t, bus.Publish(context.Background(), "1", []byte("second")))

	assert.Equal(t, int64(1), slow.Dropped())
	assert.Equal(t, int64(0), fast.Dropped())
	assert.Equal(t, "first", string(recv(t, slow)))
	assert.Equal(t, "second", string(recv(t, fast)))
	assert.Equal(t, 1, obs.drops["1"])
	assert.Equal(t, 3, obs.delivered["1"])
}

func TestSubscriptionCloseLeavesTopic(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	sub, err := bus.Subscribe("3")
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers("3"))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.Subscribers("3"))
	_, open := <-sub.Messages()
	assert.False(t, open)

	// publishing to an empty topic is not an error
	assert.NoError(t, bus.Publish(context.Background(), "3", []byte("nobody")))
}

func TestClosedBusRejectsWork(t *testing.T) {
	bus := NewMemoryBus(4)
	sub, err := bus.Subscribe("1")
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, open := <-sub.Messages()
	assert.False(t, open)
	sub.Close()

	assert.ErrorIs(t, bus.Publish(context.Background(), "1", nil), ErrClosed)
	_, err = bus.Subscribe("1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOrganizationTopic(t *testing.T) {
	assert.Equal(t, "5", OrganizationTopic(5))
	id, ok := ParseOrganizationTopic("5")
	assert.True(t, ok)
	assert.Equal(t, uint(5), id)
	_, ok = ParseOrganizationTopic("org-5")
	assert.False(t, ok)
}

func TestNewSelectsImplementation(t *testing.T) {
	bus, err := New(context.Background(), Config{Type: "memory"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryBus{}, bus)
	_ = bus.Close()

	_, err = New(context.Background(), Config{Type: "redis"}, nil, nil)
	assert.Error(t, err)
	_, err = New(context.Background(), Config{Type: "kafka"}, nil, nil)
	assert.Error(t, err)
}
