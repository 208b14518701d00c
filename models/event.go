package models

import (
	"encoding/json"
	"time"
)

// EventType enumerates the facts recorded on an intent's timeline.
type EventType string

const (
	EventIntentCreated      EventType = "INTENT_CREATED"
	EventConfirmRequested   EventType = "CONFIRM_REQUESTED"
	EventProviderAuthorized EventType = "PROVIDER_AUTHORIZED"
	EventProviderCaptured   EventType = "PROVIDER_CAPTURED"
	EventSucceeded          EventType = "SUCCEEDED"
	EventFailed             EventType = "FAILED"
	EventCanceled           EventType = "CANCELED"
)

// PaymentEvent is an immutable, append-only fact about one intent.
type PaymentEvent struct {
	// Sequence orders events within one intent. It is assigned by the store
	// on append and starts at 1.
	Sequence uint64 `json:"sequence"`

	IntentID string    `json:"intentId"`
	Type     EventType `json:"type"`

	// Payload is informational only; nothing reads it back for decisions.
	Payload json.RawMessage `json:"payload,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
