// Package sse fans change events out to the browser shell, one topic per
// session id.
package sse

import (
	"encoding/json"
	"fmt"
	"sync"
)

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan []byte]struct{})}
}

func (h *Hub) Subscribe(topic string) (chan []byte, func()) {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[chan []byte]struct{})
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if subscribers, ok := h.subs[topic]; ok {
				delete(subscribers, ch)
				if len(subscribers) == 0 {
					delete(h.subs, topic)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast delivers payload to every subscriber of the given topics. Slow
// subscribers miss events rather than block the publisher.
func (h *Hub) Broadcast(topics []string, payload []byte) {
	if len(topics) == 0 {
		return
	}
	unique := map[string]struct{}{}
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		unique[topic] = struct{}{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for topic := range unique {
		for ch := range h.subs[topic] {
			select {
			case ch <- payload:
			default:
			}
		}
	}
}

// Publish encodes data as one server-sent event and broadcasts it to topic.
func (h *Hub) Publish(topic, event string, data any) error {
	payload, err := Encode(event, data)
	if err != nil {
		return err
	}
	h.Broadcast([]string{topic}, payload)
	return nil
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

func Encode(event string, data any) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, body)), nil
}
