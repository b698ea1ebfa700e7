package stream

import (
	"encoding/json"
	"sync"
	"time"

	"invokeledger/services/settlementd/models"
)

// Message is the wire form of an archived settlement event.
type Message struct {
	Cursor     uint64            `json:"cursor"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// FromRecord decodes an archive row.
func FromRecord(row models.Event) (Message, error) {
	msg := Message{Cursor: row.Cursor, Type: row.Type, CreatedAt: row.CreatedAt}
	if row.Attributes != "" {
		if err := json.Unmarshal([]byte(row.Attributes), &msg.Attributes); err != nil {
			return Message{}, err
		}
	}
	return msg, nil
}

// Hub fans archived events out to live subscribers. A subscriber whose buffer
// is full is dropped and its channel closed.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Message
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Message)}
}

// Subscribe registers a subscriber. The returned cancel func is idempotent.
func (h *Hub) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Message, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()
	return ch, func() { h.remove(id) }
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers msg to every subscriber without blocking.
func (h *Hub) Publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			delete(h.subs, id)
			close(ch)
		}
	}
}

// PublishRecord decodes and publishes an archive row. Undecodable rows are
// skipped.
func (h *Hub) PublishRecord(row models.Event) {
	msg, err := FromRecord(row)
	if err != nil {
		return
	}
	h.Publish(msg)
}

// Subscribers reports the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
