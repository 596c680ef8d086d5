package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToSubscriber(t *testing.T) {
	hub := NewHub(nil)

	events, cancel := hub.Subscribe(1, 4)
	defer cancel()

	hub.Emit(1, "order_update", map[string]int{"id": 42})

	select {
	case ev := <-events:
		assert.Equal(t, "order_update", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHubIsolatesUsers(t *testing.T) {
	hub := NewHub(nil)

	alice, cancelAlice := hub.Subscribe(1, 4)
	defer cancelAlice()
	_, cancelBob := hub.Subscribe(2, 4)
	defer cancelBob()

	hub.Emit(2, "position_pnl", nil)

	select {
	case <-alice:
		t.Fatal("event leaked to another user")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	hub := NewHub(nil)

	events, cancel := hub.Subscribe(1, 1)
	defer cancel()

	// Second emit must not block even though the buffer is full
	done := make(chan struct{})
	go func() {
		hub.Emit(1, "a", nil)
		hub.Emit(1, "b", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full subscriber")
	}

	require.Len(t, events, 1)
	ev := <-events
	assert.Equal(t, "a", ev.Type)
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(nil)

	events, cancel := hub.Subscribe(1, 4)
	assert.Equal(t, 1, hub.SubscriberCount(1))

	cancel()
	assert.Equal(t, 0, hub.SubscriberCount(1))

	// Channel is closed after unsubscribe
	_, ok := <-events
	assert.False(t, ok)

	// Emitting to a user with no subscribers is a no-op
	hub.Emit(1, "x", nil)
}

func TestHubEmitDuringUnsubscribe(t *testing.T) {
	hub := NewHub(nil)

	// Emitters and unsubscribers racing must never send on a closed channel
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Emit(1, "position_pnl", i)
		}
		close(done)
	}()

	for i := 0; i < 200; i++ {
		events, cancel := hub.Subscribe(1, 1)
		// Drain one event if present to keep the emitter moving
		select {
		case <-events:
		default:
		}
		cancel()
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("emitter did not finish")
	}
	assert.Equal(t, 0, hub.SubscriberCount(1))
}

func TestHubCancelIsIdempotent(t *testing.T) {
	hub := NewHub(nil)

	_, cancel := hub.Subscribe(1, 4)
	cancel()
	cancel()

	assert.Equal(t, 0, hub.SubscriberCount(1))
}
