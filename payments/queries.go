package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/store"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListParams filters List. Zero values mean no constraint.
type ListParams struct {
	Status models.Status
	From   time.Time
	To     time.Time
	Page   int
	Size   int
}

// Page is one page of intents.
type Page struct {
	Items []models.PaymentIntent `json:"content"`
	Total int                    `json:"totalElements"`
	Page  int                    `json:"page"`
	Size  int                    `json:"size"`
}

// Get returns one of the merchant's intents.
func (o *Orchestrator) Get(_ context.Context, merchantID, intentID string) (*models.PaymentIntent, error) {
	var intent *models.PaymentIntent
	err := o.store.View(func(tx *store.Tx) error {
		var err error
		intent, err = loadScoped(tx, merchantID, intentID)
		return err
	})
	return intent, err
}

// List returns the merchant's intents, newest first.
func (o *Orchestrator) List(_ context.Context, merchantID string, p ListParams) (*Page, error) {
	if p.Status != "" && !p.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, p.Status)
	}
	if !p.From.IsZero() && !p.To.IsZero() && p.To.Before(p.From) {
		return nil, fmt.Errorf("%w: 'to' is before 'from'", ErrInvalidRequest)
	}
	if p.Page < 0 {
		return nil, fmt.Errorf("%w: page must not be negative", ErrInvalidRequest)
	}
	switch {
	case p.Size <= 0:
		p.Size = DefaultPageSize
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}

	out := &Page{Page: p.Page, Size: p.Size}
	err := o.store.View(func(tx *store.Tx) error {
		var err error
		out.Items, out.Total, err = tx.ListIntents(store.IntentFilter{
			Merchant: merchantID,
			Status:   p.Status,
			From:     p.From,
			To:       p.To,
			Page:     p.Page,
			Size:     p.Size,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Events returns the intent's timeline in the order the events were
// committed.
func (o *Orchestrator) Events(_ context.Context, merchantID, intentID string) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := o.store.View(func(tx *store.Tx) error {
		if _, err := loadScoped(tx, merchantID, intentID); err != nil {
			return err
		}
		var err error
		events, err = tx.Events(intentID)
		return err
	})
	return events, err
}

// Deliveries returns the provider callbacks that changed the intent.
func (o *Orchestrator) Deliveries(_ context.Context, merchantID, intentID string) ([]models.WebhookDelivery, error) {
	var out []models.WebhookDelivery
	err := o.store.View(func(tx *store.Tx) error {
		if _, err := loadScoped(tx, merchantID, intentID); err != nil {
			return err
		}
		var err error
		out, err = tx.WebhookDeliveries(intentID)
		return err
	})
	return out, err
}
