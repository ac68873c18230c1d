// Package webhook posts signed notifications to the photographer's
// configured endpoint when a purchase is paid or a photo's publication
// changes. Delivery is at-most-a-few-attempts best effort.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var backoffSchedule = []time.Duration{
	30 * time.Second,
	5 * time.Minute,
	30 * time.Minute,
}

type Dispatcher struct {
	URL    string
	Secret string
}

func (d *Dispatcher) Enabled() bool {
	return d != nil && d.URL != ""
}

type Event struct {
	EventType string      `json:"event_type"`
	EventID   string      `json:"event_id"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Dispatch posts the event asynchronously, retrying on the backoff schedule
// before giving up.
func (d *Dispatcher) Dispatch(eventType string, data interface{}) {
	if !d.Enabled() {
		return
	}

	event := Event{
		EventType: eventType,
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("webhook marshal", "error", err)
		return
	}

	go d.attempt(eventType, payload)
}

func (d *Dispatcher) attempt(eventType string, payload []byte) {
	for i := 0; ; i++ {
		err := d.post(payload)
		if err == nil {
			slog.Info("webhook delivered", "url", d.URL, "event", eventType)
			return
		}
		if i >= len(backoffSchedule) {
			slog.Warn("webhook exhausted", "url", d.URL, "event", eventType, "attempts", i+1)
			return
		}
		slog.Warn("webhook failed, will retry", "url", d.URL, "event", eventType,
			"attempt", i+1, "error", err)
		time.Sleep(backoffSchedule[i])
	}
}

func (d *Dispatcher) post(payload []byte) error {
	mac := hmac.New(sha256.New, []byte(d.Secret))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequest(http.MethodPost, d.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fotomatch-Signature", "sha256="+signature)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
