package automation

import "sync"

// Event is an enrollment transition broadcast to subscribers.
type Event struct {
	Type         string `json:"type"`
	EnrollmentID uint   `json:"enrollment_id"`
	SequenceID   uint   `json:"sequence_id"`
	ContactID    uint   `json:"contact_id"`
	Status       string `json:"status"`
	CurrentStep  int    `json:"current_step"`
}

// Hub is a registry of event subscribers keyed by connection id, with
// explicit add/remove on connect/disconnect. Slow subscribers drop
// events rather than blocking lifecycle operations.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan Event)}
}

// Subscribe registers a subscriber and returns its event channel.
func (h *Hub) Subscribe(id string) <-chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish fans the event out to every subscriber.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
