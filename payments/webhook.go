package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arkantrust/payment-intents/audit"
	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/statemachine"
	"github.com/arkantrust/payment-intents/store"
)

// Notification is an inbound provider callback.
type Notification struct {
	ProviderReference string

	// Status is "SUCCEEDED" or "FAILED", case-insensitive.
	Status string

	FailureCode    string
	FailureMessage string
}

func (n Notification) target() (models.Status, error) {
	switch strings.ToUpper(strings.TrimSpace(n.Status)) {
	case string(models.StatusSucceeded):
		return models.StatusSucceeded, nil
	case string(models.StatusFailed):
		return models.StatusFailed, nil
	}
	return "", fmt.Errorf("%w: unsupported webhook status %q", ErrInvalidRequest, n.Status)
}

// Reconciler applies provider outcomes to intents. Callbacks carry no
// dedup key and may arrive duplicated or out of order; the terminal-state
// check of the state machine is the only guard, so applying the same
// notification any number of times has the effect of applying it once.
type Reconciler struct {
	store  *store.Store
	audit  AuditSink
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler returns a Reconciler. Most callers reach it through
// Orchestrator.HandleProviderWebhook.
func NewReconciler(s *store.Store, sink AuditSink, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: s, audit: sink, logger: logger, now: time.Now}
}

// Apply transitions the intent behind n.ProviderReference to n's terminal
// status. It returns (nil, false, nil) for unknown references and the
// unchanged intent with applied false when the transition is no longer
// possible.
func (r *Reconciler) Apply(ctx context.Context, n Notification) (intent *models.PaymentIntent, applied bool, err error) {
	if strings.TrimSpace(n.ProviderReference) == "" {
		return nil, false, fmt.Errorf("%w: provider reference is required", ErrInvalidRequest)
	}
	target, err := n.target()
	if err != nil {
		return nil, false, err
	}

	err = r.store.Update(func(tx *store.Tx) error {
		current, err := tx.IntentByProviderRef(n.ProviderReference)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if current.Status == target || !statemachine.CanTransition(current.Status, target) {
			intent = current
			return nil
		}
		if err := statemachine.Validate(current.Status, target); err != nil {
			return err
		}

		now := r.now().UTC()
		next := current.Clone()
		next.Status = target
		next.UpdatedAt = now
		eventType := models.EventSucceeded
		if target == models.StatusFailed {
			next.FailureCode = n.FailureCode
			next.FailureMessage = n.FailureMessage
			eventType = models.EventFailed
		}

		if err := tx.UpdateIntent(next, current.Version); err != nil {
			return err
		}
		if err := tx.AppendEvent(&models.PaymentEvent{
			IntentID: next.ID,
			Type:     eventType,
			Payload: payload(map[string]string{
				"providerReference": n.ProviderReference,
				"status":            n.Status,
			}),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.InsertWebhookDelivery(&models.WebhookDelivery{
			IntentID:          next.ID,
			ProviderReference: n.ProviderReference,
			EventType:         n.Status,
			Status:            models.WebhookDelivered,
			Attempts:          1,
			LastAttemptAt:     now,
			CreatedAt:         now,
		}); err != nil {
			return err
		}
		intent, applied = next, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("apply provider webhook: %w", err)
	}

	switch {
	case intent == nil:
		r.logger.WarnContext(ctx, "webhook for unknown provider reference", "provider_reference", n.ProviderReference)
	case !applied:
		r.logger.InfoContext(ctx, "webhook idempotent",
			"intent_id", intent.ID, "status", intent.Status, "webhook_status", n.Status)
	default:
		r.audit.Record(ctx, intent.MerchantID, audit.ActionWebhookProcessed,
			fmt.Sprintf("intentId=%s, status=%s", intent.ID, n.Status))
		r.logger.InfoContext(ctx, "webhook processed",
			"intent_id", intent.ID, "provider_reference", n.ProviderReference, "status", intent.Status)
	}
	return intent, applied, nil
}
