package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	keepAliveInterval = 25 * time.Second
	retryHintMillis   = 4000
)

// EventStream — GET /events/{eventID}/stream. Server-sent events carrying
// refresh signals for one event's gallery. Client disconnect tears down the
// keep-alive timer and unsubscribes before returning.
func (h *Handler) EventStream(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsub := h.Hub.Subscribe(eventID)
	defer unsub()

	fmt.Fprintf(w, "retry: %d\n\n", retryHintMillis)
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		case update, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, data)
			flusher.Flush()
		}
	}
}
