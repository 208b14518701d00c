// Package models defines the core domain types for payment intents.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a PaymentIntent. The set is closed: every
// switch over a Status handles all six values.
type Status string

const (
	StatusCreated              Status = "CREATED"
	StatusRequiresConfirmation Status = "REQUIRES_CONFIRMATION"
	StatusProcessing           Status = "PROCESSING"
	StatusSucceeded            Status = "SUCCEEDED"
	StatusFailed               Status = "FAILED"
	StatusCanceled             Status = "CANCELED"
)

// Statuses lists every status in declaration order.
var Statuses = []Status{
	StatusCreated,
	StatusRequiresConfirmation,
	StatusProcessing,
	StatusSucceeded,
	StatusFailed,
	StatusCanceled,
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusRequiresConfirmation, StatusProcessing,
		StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// PaymentIntent represents one attempt to move a specific amount for a
// merchant through the payment provider.
//
// Amount, Currency and MerchantID never change after creation. Status only
// moves along edges allowed by the statemachine package, and
// ProviderReference is written once, when the intent is confirmed.
type PaymentIntent struct {
	// ID is a random UUID assigned at creation.
	ID string `json:"id"`

	// MerchantID is the owning merchant. Every read and mutation is scoped
	// to it; intents of another merchant behave as if they did not exist.
	MerchantID string `json:"merchantId"`

	// Amount is normalised to exactly two fractional digits (round half up).
	Amount decimal.Decimal `json:"amount"`

	// Currency is the ISO 4217 three-letter code (e.g. "SEK", "EUR").
	Currency string `json:"currency"`

	Status Status `json:"status"`

	Description       string `json:"description,omitempty"`
	CustomerReference string `json:"customerReference,omitempty"`

	// ProviderReference is the simulated provider payment id. Provider
	// webhooks locate the intent through it.
	ProviderReference string `json:"providerReference,omitempty"`

	// FailureCode and FailureMessage are only set on transition to FAILED.
	FailureCode    string `json:"failureCode,omitempty"`
	FailureMessage string `json:"failureMessage,omitempty"`

	// CreateIdempotencyKey and ConfirmIdempotencyKey record the keys under
	// which the intent was created and confirmed. Each is set at most once.
	CreateIdempotencyKey  string `json:"createIdempotencyKey,omitempty"`
	ConfirmIdempotencyKey string `json:"confirmIdempotencyKey,omitempty"`

	// Version is the optimistic lock counter, incremented on every write.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy of the intent that can be mutated without affecting
// the receiver.
func (p *PaymentIntent) Clone() *PaymentIntent {
	c := *p
	return &c
}
