package notify

import (
	"context"
	"sync"
)

// Hub fans in-app messages out to per-account subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Message
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string][]chan Message),
	}
}

// Subscribe returns a buffered feed for accountID and a func that ends it.
func (h *Hub) Subscribe(accountID string) (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Message, 10)
	h.subscribers[accountID] = append(h.subscribers[accountID], ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(accountID, ch) })
	}
}

func (h *Hub) unsubscribe(accountID string, target chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[accountID]
	for i, ch := range subs {
		if ch == target {
			h.subscribers[accountID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(h.subscribers[accountID]) == 0 {
		delete(h.subscribers, accountID)
	}
}

func (h *Hub) Handles(ch Channel) bool { return ch == ChannelInApp }

func (h *Hub) Deliver(_ context.Context, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[msg.AccountID] {
		select {
		case ch <- msg:
		default:
			// slow subscriber, skip
		}
	}
	return nil
}
