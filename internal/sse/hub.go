// Package sse is an in-memory pub/sub hub fanning out gallery updates to
// live viewers of one event. Best-effort: no replay, no backlog - updates
// published with no subscriber attached are dropped.
package sse

import (
	"sync"
	"time"
)

// Update types broadcast on photo lifecycle changes.
const (
	PhotoUploaded    = "photo.uploaded"
	PhotoIndexed     = "photo.indexed"
	PhotoPublished   = "photo.published"
	PhotoUnpublished = "photo.unpublished"
)

// Update is a refresh signal, not a source of truth: subscribers re-fetch
// authoritative state instead of trusting the payload.
type Update struct {
	Type      string    `json:"type"`
	EventID   string    `json:"event_id"`
	PhotoID   string    `json:"photo_id"`
	Timestamp time.Time `json:"timestamp"`
}

type Hub struct {
	mu      sync.Mutex
	clients map[string]map[chan Update]struct{}
}

func New() *Hub {
	return &Hub{
		clients: make(map[string]map[chan Update]struct{}),
	}
}

// Subscribe registers a listener for one event id.
// Returns a receive-only channel and an unsubscribe function. Unsubscribing
// is synchronous: once it returns, no further delivery is possible, even
// for updates published concurrently.
func (h *Hub) Subscribe(eventID string) (<-chan Update, func()) {
	ch := make(chan Update, 16)

	h.mu.Lock()
	if h.clients[eventID] == nil {
		h.clients[eventID] = make(map[chan Update]struct{})
	}
	h.clients[eventID][ch] = struct{}{}
	h.mu.Unlock()

	unsub := func() {
		h.mu.Lock()
		delete(h.clients[eventID], ch)
		if len(h.clients[eventID]) == 0 {
			delete(h.clients, eventID)
		}
		h.mu.Unlock()
		// drain anything buffered before the unsubscribe
		for {
			select {
			case <-ch:
			default:
				return
			}
		}
	}

	return ch, unsub
}

// Publish sends an update to all subscribers of the event id.
// Sends happen under the hub lock so that an unsubscribe observed before
// the publish can never receive it; slow clients are skipped rather than
// blocked on.
func (h *Hub) Publish(eventID string, u Update) {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients[eventID] {
		select {
		case ch <- u:
		default:
			// skip slow client
		}
	}
}
