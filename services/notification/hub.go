package notification

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/customeros/mailsync/dto"
)

const defaultSubscriberBuffer = 16

type Subscription struct {
	ID     string
	UserID string
	C      <-chan dto.NewMailEvent

	ch chan dto.NewMailEvent
}

// Hub keeps per-user subscriber channels for in-process streaming.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*Subscription
	buffer      int
	closed      bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subscribers: make(map[string]map[string]*Subscription),
		buffer:      buffer,
	}
}

func (h *Hub) Name() string {
	return "hub"
}

func (h *Hub) Subscribe(userID string) *Subscription {
	ch := make(chan dto.NewMailEvent, h.buffer)
	sub := &Subscription{
		ID:     uuid.NewString(),
		UserID: userID,
		C:      ch,
		ch:     ch,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[string]*Subscription)
	}
	h.subscribers[userID][sub.ID] = sub
	return sub
}

// Unsubscribe closes the subscription channel. Calling it twice is safe.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	users, ok := h.subscribers[sub.UserID]
	if !ok {
		return
	}
	if _, ok := users[sub.ID]; !ok {
		return
	}
	delete(users, sub.ID)
	if len(users) == 0 {
		delete(h.subscribers, sub.UserID)
	}
	close(sub.ch)
}

func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}

// Deliver never blocks; a subscriber with a full buffer misses the event.
func (h *Hub) Deliver(ctx context.Context, userID string, event dto.NewMailEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers[userID] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

// Close ends every open subscription. Later subscriptions come back already closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for userID, users := range h.subscribers {
		for _, sub := range users {
			close(sub.ch)
		}
		delete(h.subscribers, userID)
	}
}
