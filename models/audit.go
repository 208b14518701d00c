package models

import "time"

// WebhookDeliveryStatus is the processing state of an inbound provider
// callback.
type WebhookDeliveryStatus string

const (
	WebhookDelivered WebhookDeliveryStatus = "DELIVERED"
)

// WebhookDelivery is an audit record of one provider callback that changed
// an intent. It plays no part in reconciliation decisions.
type WebhookDelivery struct {
	Sequence          uint64                `json:"sequence"`
	IntentID          string                `json:"intentId"`
	ProviderReference string                `json:"providerReference"`
	EventType         string                `json:"eventType"`
	Status            WebhookDeliveryStatus `json:"status"`
	Attempts          int                   `json:"attempts"`
	LastAttemptAt     time.Time             `json:"lastAttemptAt"`
	CreatedAt         time.Time             `json:"createdAt"`
}

// AuditEntry is one fact emitted by a state-changing operation: who did it,
// what it was, and free-text detail.
type AuditEntry struct {
	Sequence  uint64    `json:"sequence"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}
