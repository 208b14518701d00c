// Package payments is the transactional core of the service: it sequences
// validation, state transitions, event emission, idempotency recording and
// optimistic concurrency for payment intents.
//
// Every method takes the merchant as an explicit argument. Nothing is read
// from ambient request state.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arkantrust/payment-intents/audit"
	"github.com/arkantrust/payment-intents/idempotency"
	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/statemachine"
	"github.com/arkantrust/payment-intents/store"
)

// AuditSink receives one fact per state-changing operation. It must not
// fail the caller.
type AuditSink interface {
	Record(ctx context.Context, actor, action, detail string)
}

const (
	maxDescription       = 500
	maxCustomerReference = 255
)

var (
	minAmount = decimal.New(1, -2)
	maxAmount = decimal.New(1, 17)
)

// Orchestrator executes create, confirm and cancel against the store, and
// routes provider webhooks to its Reconciler.
type Orchestrator struct {
	store      *store.Store
	idem       *idempotency.Coordinator
	provider   Provider
	audit      AuditSink
	reconciler *Reconciler
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator replaces the random UUID generator for intent ids.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// New wires an Orchestrator.
func New(s *store.Store, provider Provider, sink AuditSink, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    s,
		provider: provider,
		audit:    sink,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.idem = idempotency.New(o.now)
	o.reconciler = &Reconciler{store: s, audit: sink, logger: logger, now: o.now}
	return o
}

// CreateParams is the input of Create.
type CreateParams struct {
	MerchantID        string
	Amount            decimal.Decimal
	Currency          string
	Description       string
	CustomerReference string

	// IdempotencyKey is optional. Without it every call creates a new
	// intent.
	IdempotencyKey string

	// Fingerprint of the canonical request payload. When empty and a key is
	// given, it is derived from the other fields.
	Fingerprint string
}

// normalize validates p and returns the rounded amount and upper-cased
// currency.
func (p *CreateParams) normalize() error {
	if strings.TrimSpace(p.MerchantID) == "" {
		return fmt.Errorf("%w: merchant is required", ErrInvalidRequest)
	}
	p.Amount = p.Amount.Round(2)
	if p.Amount.LessThan(minAmount) {
		return fmt.Errorf("%w: amount must be at least 0.01", ErrInvalidRequest)
	}
	if !p.Amount.LessThan(maxAmount) {
		return fmt.Errorf("%w: amount is too large", ErrInvalidRequest)
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if len(p.Currency) != 3 || strings.Trim(p.Currency, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidRequest)
	}
	if len(p.Description) > maxDescription {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidRequest, maxDescription)
	}
	if len(p.CustomerReference) > maxCustomerReference {
		return fmt.Errorf("%w: customer reference exceeds %d characters", ErrInvalidRequest, maxCustomerReference)
	}
	if err := checkKey(p.MerchantID, p.IdempotencyKey); err != nil {
		return err
	}
	if p.IdempotencyKey != "" && p.Fingerprint == "" {
		payload, err := json.Marshal(struct {
			Amount            string `json:"amount"`
			Currency          string `json:"currency"`
			Description       string `json:"description"`
			CustomerReference string `json:"customerReference"`
		}{p.Amount.StringFixed(2), p.Currency, p.Description, p.CustomerReference})
		if err != nil {
			return err
		}
		p.Fingerprint = idempotency.Fingerprint(payload)
	}
	return nil
}

// checkKey rejects tuple parts the store cannot tell apart from another
// tuple.
func checkKey(merchantID, key string) error {
	if strings.ContainsRune(merchantID, 0) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: merchant and idempotency key must not contain NUL", ErrInvalidRequest)
	}
	return nil
}

// Create allocates a new intent in CREATED status.
//
// With an idempotency key, a replay of the same payload returns the
// original intent and created is false; a different payload under the same
// key fails with ErrIdempotencyConflict.
func (o *Orchestrator) Create(ctx context.Context, p CreateParams) (intent *models.PaymentIntent, created bool, err error) {
	if err := p.normalize(); err != nil {
		return nil, false, err
	}

	req := idempotency.Request{
		MerchantID:  p.MerchantID,
		Operation:   models.OperationCreate,
		Key:         p.IdempotencyKey,
		Fingerprint: p.Fingerprint,
	}

	if req.Key != "" {
		original, err := o.replay(req)
		if err != nil || original != nil {
			if original != nil {
				o.logger.InfoContext(ctx, "create replayed", "intent_id", original.ID, "merchant_id", p.MerchantID)
			}
			return original, false, err
		}
	}

	now := o.now().UTC()
	intent = &models.PaymentIntent{
		ID:                   o.newID(),
		MerchantID:           p.MerchantID,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Status:               models.StatusCreated,
		Description:          p.Description,
		CustomerReference:    p.CustomerReference,
		CreateIdempotencyKey: p.IdempotencyKey,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = o.store.Update(func(tx *store.Tx) error {
		if req.Key != "" {
			if err := o.idem.Record(tx, req, intent.ID); err != nil {
				if errors.Is(err, store.ErrDuplicateKey) {
					return errLostRace
				}
				return err
			}
		}
		if err := tx.InsertIntent(intent); err != nil {
			return err
		}
		return tx.AppendEvent(&models.PaymentEvent{
			IntentID:  intent.ID,
			Type:      models.EventIntentCreated,
			CreatedAt: now,
		})
	})
	if errors.Is(err, errLostRace) {
		winner, err := o.replay(req)
		if err == nil && winner == nil {
			err = ErrConcurrentModification
		}
		return winner, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("create payment intent: %w", err)
	}

	o.audit.Record(ctx, p.MerchantID, audit.ActionIntentCreated,
		fmt.Sprintf("intentId=%s, amount=%s %s", intent.ID, intent.Amount.StringFixed(2), intent.Currency))
	o.logger.InfoContext(ctx, "payment intent created",
		"intent_id", intent.ID, "merchant_id", p.MerchantID,
		"amount", intent.Amount.StringFixed(2), "currency", intent.Currency)
	return intent, true, nil
}

// replay returns the intent recorded under req, nil when the key is unused,
// or ErrIdempotencyConflict when the fingerprints differ.
func (o *Orchestrator) replay(req idempotency.Request) (*models.PaymentIntent, error) {
	var intent *models.PaymentIntent
	err := o.store.View(func(tx *store.Tx) error {
		rec, err := o.idem.Lookup(tx, req)
		if err != nil || rec == nil {
			return err
		}
		id, err := o.idem.Resolve(rec, req.Fingerprint)
		if err != nil {
			return err
		}
		intent, err = loadScoped(tx, req.MerchantID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// ConfirmParams is the input of Confirm.
type ConfirmParams struct {
	MerchantID     string
	IntentID       string
	IdempotencyKey string
	Fingerprint    string
}

// Confirm charges the intent through the provider.
//
// The key is mandatory: a provider charge must never be initiated by a
// bare retry. On success the intent moves to PROCESSING, receives a
// provider reference, and is resolved synchronously to SUCCEEDED or FAILED
// (or left PROCESSING under the pending policy).
//
// The intent is read, the provider consulted, and the result written with
// a version-conditioned update. A caller that loses the race to a
// concurrent confirm under the same key adopts the winner's result;
// confirmed is false in that case and for plain replays.
func (o *Orchestrator) Confirm(ctx context.Context, p ConfirmParams) (intent *models.PaymentIntent, confirmed bool, err error) {
	if strings.TrimSpace(p.IdempotencyKey) == "" {
		return nil, false, fmt.Errorf("%w: Idempotency-Key is required for confirm", ErrInvalidRequest)
	}
	if err := checkKey(p.MerchantID, p.IdempotencyKey); err != nil {
		return nil, false, err
	}
	if p.Fingerprint == "" {
		p.Fingerprint = idempotency.Fingerprint([]byte(p.IntentID))
	}

	req := idempotency.Request{
		MerchantID:     p.MerchantID,
		Operation:      models.OperationConfirm,
		Key:            p.IdempotencyKey,
		TargetIntentID: p.IntentID,
		Fingerprint:    p.Fingerprint,
	}

	var current *models.PaymentIntent
	err = o.store.View(func(tx *store.Tx) error {
		var err error
		current, err = loadScoped(tx, p.MerchantID, p.IntentID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	original, err := o.replay(req)
	if err != nil {
		return nil, false, err
	}
	if original != nil {
		o.logger.InfoContext(ctx, "confirm replayed", "intent_id", original.ID, "status", original.Status)
		return original, false, nil
	}

	if !statemachine.CanConfirm(current.Status) {
		return nil, false, fmt.Errorf("%w: cannot confirm payment in status %s", ErrInvalidState, current.Status)
	}

	next, events, err := o.charge(ctx, current, p.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}

	err = o.store.Update(func(tx *store.Tx) error {
		if err := o.idem.Record(tx, req, current.ID); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				return errLostRace
			}
			return err
		}
		if err := tx.UpdateIntent(next, current.Version); err != nil {
			if errors.Is(err, store.ErrVersionMismatch) {
				return errLostRace
			}
			return err
		}
		for _, ev := range events {
			if err := tx.AppendEvent(ev); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		return o.adoptWinner(ctx, req)
	}
	if err != nil {
		return nil, false, fmt.Errorf("confirm payment intent: %w", err)
	}

	o.audit.Record(ctx, p.MerchantID, audit.ActionIntentConfirmed,
		fmt.Sprintf("intentId=%s, status=%s", next.ID, next.Status))
	o.logger.InfoContext(ctx, "payment confirmed",
		"intent_id", next.ID, "merchant_id", p.MerchantID,
		"status", next.Status, "provider_reference", next.ProviderReference)
	return next, true, nil
}

// charge computes the post-confirm intent and the events that describe it.
// Nothing is written here.
func (o *Orchestrator) charge(ctx context.Context, current *models.PaymentIntent, key string) (*models.PaymentIntent, []*models.PaymentEvent, error) {
	now := o.now().UTC()
	next := current.Clone()

	if err := statemachine.Validate(next.Status, models.StatusProcessing); err != nil {
		return nil, nil, err
	}
	next.Status = models.StatusProcessing
	next.ProviderReference = o.provider.Reference()
	next.ConfirmIdempotencyKey = key
	next.UpdatedAt = now

	events := []*models.PaymentEvent{{
		IntentID:  next.ID,
		Type:      models.EventConfirmRequested,
		Payload:   payload(map[string]string{"providerReference": next.ProviderReference}),
		CreatedAt: now,
	}}

	outcome, err := o.provider.Charge(ctx, next)
	if err != nil {
		return nil, nil, fmt.Errorf("provider charge: %w", err)
	}

	switch outcome.Status {
	case models.StatusProcessing:
		return next, events, nil
	case models.StatusSucceeded:
		if err := statemachine.Validate(next.Status, models.StatusSucceeded); err != nil {
			return nil, nil, err
		}
		next.Status = models.StatusSucceeded
		events = append(events, &models.PaymentEvent{
			IntentID:  next.ID,
			Type:      models.EventSucceeded,
			CreatedAt: now,
		})
	case models.StatusFailed:
		if err := statemachine.Validate(next.Status, models.StatusFailed); err != nil {
			return nil, nil, err
		}
		next.Status = models.StatusFailed
		next.FailureCode = outcome.FailureCode
		next.FailureMessage = outcome.FailureMessage
		events = append(events, &models.PaymentEvent{
			IntentID:  next.ID,
			Type:      models.EventFailed,
			Payload:   payload(map[string]string{"failureCode": outcome.FailureCode}),
			CreatedAt: now,
		})
	case models.StatusCreated, models.StatusRequiresConfirmation, models.StatusCanceled:
		return nil, nil, fmt.Errorf("provider returned non-charge status %s", outcome.Status)
	default:
		return nil, nil, fmt.Errorf("provider returned unknown status %q", outcome.Status)
	}
	return next, events, nil
}

// adoptWinner re-reads after a lost race. If the winner used the same key
// and payload, its result is returned as ours. If a different key won, the
// intent is no longer confirmable and the caller gets ErrInvalidState.
func (o *Orchestrator) adoptWinner(ctx context.Context, req idempotency.Request) (*models.PaymentIntent, bool, error) {
	winner, err := o.replay(req)
	if err != nil {
		return nil, false, err
	}
	if winner != nil {
		o.logger.InfoContext(ctx, "confirm idempotent (concurrent)",
			"intent_id", winner.ID, "merchant_id", req.MerchantID, "status", winner.Status)
		return winner, false, nil
	}

	var current *models.PaymentIntent
	err = o.store.View(func(tx *store.Tx) error {
		var err error
		current, err = loadScoped(tx, req.MerchantID, req.TargetIntentID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if !statemachine.CanConfirm(current.Status) {
		return nil, false, fmt.Errorf("%w: cannot confirm payment in status %s", ErrInvalidState, current.Status)
	}
	return nil, false, ErrConcurrentModification
}

// Cancel moves a CREATED or REQUIRES_CONFIRMATION intent to CANCELED.
// Canceling an already canceled intent succeeds without a new event.
func (o *Orchestrator) Cancel(ctx context.Context, merchantID, intentID string) (*models.PaymentIntent, error) {
	var (
		intent  *models.PaymentIntent
		changed bool
	)
	err := o.store.Update(func(tx *store.Tx) error {
		current, err := loadScoped(tx, merchantID, intentID)
		if err != nil {
			return err
		}
		if current.Status == models.StatusCanceled {
			intent = current
			return nil
		}
		if !statemachine.CanCancel(current.Status) {
			return fmt.Errorf("%w: cannot cancel payment in status %s", ErrInvalidState, current.Status)
		}
		if err := statemachine.Validate(current.Status, models.StatusCanceled); err != nil {
			return err
		}

		now := o.now().UTC()
		next := current.Clone()
		next.Status = models.StatusCanceled
		next.UpdatedAt = now
		if err := tx.UpdateIntent(next, current.Version); err != nil {
			if errors.Is(err, store.ErrVersionMismatch) {
				return ErrConcurrentModification
			}
			return err
		}
		if err := tx.AppendEvent(&models.PaymentEvent{
			IntentID:  next.ID,
			Type:      models.EventCanceled,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		intent, changed = next, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		o.logger.InfoContext(ctx, "cancel is a no-op", "intent_id", intentID, "merchant_id", merchantID)
		return intent, nil
	}
	o.audit.Record(ctx, merchantID, audit.ActionIntentCanceled, "intentId="+intentID)
	o.logger.InfoContext(ctx, "payment canceled", "intent_id", intentID, "merchant_id", merchantID)
	return intent, nil
}

// HandleProviderWebhook applies a provider's terminal outcome. It returns a
// nil intent, and no error, for references it does not know.
func (o *Orchestrator) HandleProviderWebhook(ctx context.Context, n Notification) (*models.PaymentIntent, error) {
	intent, _, err := o.reconciler.Apply(ctx, n)
	return intent, err
}

// loadScoped reads an intent owned by merchantID. Intents of other merchants
// are reported as ErrNotFound.
func loadScoped(tx *store.Tx, merchantID, intentID string) (*models.PaymentIntent, error) {
	p, err := tx.Intent(intentID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p.MerchantID != merchantID) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func payload(v map[string]string) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
