package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Event is one message pushed to a user's live channel
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub fans events out to per-user subscriber channels. Sends never block:
// a subscriber that cannot keep up drops messages rather than stalling the
// workers that publish. Sends happen under the read lock and channels close
// only under the write lock, so an unsubscribe concurrent with an emit can
// never send on a closed channel. An optional Redis client mirrors every
// event onto a pub/sub channel for out-of-process consumers.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint][]chan Event

	redis *redis.Client
}

// NewHub creates a Hub. rdb may be nil to disable the Redis mirror.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		subs:  make(map[uint][]chan Event),
		redis: rdb,
	}
}

// Subscribe registers a channel for a user's events. The returned function
// unsubscribes and closes the channel.
func (h *Hub) Subscribe(userID uint, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[userID] = append(h.subs[userID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		chans := h.subs[userID]
		for i, c := range chans {
			if c == ch {
				h.subs[userID] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Emit delivers an event to all of a user's subscribers without blocking
func (h *Hub) Emit(userID uint, eventType string, payload interface{}) {
	ev := Event{Type: eventType, Payload: payload}

	h.mu.RLock()
	for _, ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
			// Slow consumer; drop rather than stall the publisher
		}
	}
	h.mu.RUnlock()

	if h.redis != nil {
		if data, err := json.Marshal(ev); err == nil {
			if err := h.redis.Publish(context.Background(), "user_events", string(data)).Err(); err != nil {
				log.Printf("[Hub] redis mirror publish failed: %v", err)
			}
		}
	}
}

// SubscriberCount reports active subscriber channels for a user
func (h *Hub) SubscriberCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
