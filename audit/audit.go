// Package audit records who changed what. Entries are written to the store
// in their own transaction and mirrored to the structured log. Writing an
// entry is fire-and-forget: a failed write is logged and never fails the
// operation that emitted it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/store"
)

// Action tags.
const (
	ActionIntentCreated    = "PAYMENT_INTENT_CREATED"
	ActionIntentConfirmed  = "PAYMENT_CONFIRMED"
	ActionIntentCanceled   = "PAYMENT_CANCELED"
	ActionWebhookProcessed = "WEBHOOK_PROCESSED"
	ActionAPIKeyCreated    = "API_KEY_CREATED"
	ActionAPIKeyRevoked    = "API_KEY_REVOKED"
)

// Sink persists audit entries.
type Sink struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Sink writing to s.
func New(s *store.Store, logger *slog.Logger) *Sink {
	return &Sink{store: s, logger: logger, now: time.Now}
}

// Record stores one audit fact.
func (a *Sink) Record(ctx context.Context, actor, action, detail string) {
	e := &models.AuditEntry{
		Actor:     actor,
		Action:    action,
		Detail:    detail,
		CreatedAt: a.now().UTC(),
	}
	err := a.store.Update(func(tx *store.Tx) error { return tx.AppendAudit(e) })
	if err != nil {
		a.logger.ErrorContext(ctx, "audit write failed", "action", action, "actor", actor, "err", err)
		return
	}
	a.logger.DebugContext(ctx, "audit", "action", action, "actor", actor, "detail", detail)
}

// List returns one page of entries, newest first, and the total count.
func (a *Sink) List(page, size int) ([]models.AuditEntry, int, error) {
	var (
		entries []models.AuditEntry
		total   int
	)
	err := a.store.View(func(tx *store.Tx) error {
		var err error
		entries, total, err = tx.Audit(page, size)
		return err
	})
	return entries, total, err
}
