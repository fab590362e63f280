package webhooks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Subscriber is a statically configured webhook endpoint.
type Subscriber struct {
	URL    string   `json:"url"    mapstructure:"url"`
	Secret string   `json:"-"      mapstructure:"secret"` // never returned in API responses
	Events []string `json:"events" mapstructure:"events"` // empty means every event
}

// wants reports whether the subscriber listens for eventType.
func (s Subscriber) wants(eventType string) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

// WebhookEvent is the body POSTed to subscribers.
type WebhookEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// WebhookDelivery records the outcome of a single delivery attempt.
type WebhookDelivery struct {
	EventID      uuid.UUID `json:"event_id"`
	URL          string    `json:"url"`
	EventType    string    `json:"event_type"`
	StatusCode   int       `json:"status_code"`
	Attempt      int       `json:"attempt"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DeliveredAt  time.Time `json:"delivered_at"`
}
