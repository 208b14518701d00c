package store_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func intent(id, merchant string, created time.Time) *models.PaymentIntent {
	return &models.PaymentIntent{
		ID:         id,
		MerchantID: merchant,
		Amount:     decimal.RequireFromString("10.00"),
		Currency:   "EUR",
		Status:     models.StatusCreated,
		Version:    1,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func insert(t *testing.T, s *store.Store, p *models.PaymentIntent) {
	t.Helper()
	require.NoError(t, s.Update(func(tx *store.Tx) error { return tx.InsertIntent(p) }))
}

func TestInsertIntentIsWriteOnce(t *testing.T) {
	s := newTestStore(t)
	insert(t, s, intent("pi_1", "m1", base))

	err := s.Update(func(tx *store.Tx) error { return tx.InsertIntent(intent("pi_1", "m1", base)) })
	assert.True(t, errors.Is(err, store.ErrDuplicateKey), "got %v", err)
}

func TestIntentNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.View(func(tx *store.Tx) error {
		_, err := tx.Intent("missing")
		return err
	})
	assert.Equal(t, store.ErrNotFound, err)
}

func TestUpdateIntentConditionalWrite(t *testing.T) {
	s := newTestStore(t)
	insert(t, s, intent("pi_1", "m1", base))

	first := intent("pi_1", "m1", base)
	first.Status = models.StatusProcessing
	first.ProviderReference = "pay_sim_1"
	require.NoError(t, s.Update(func(tx *store.Tx) error { return tx.UpdateIntent(first, 1) }))
	assert.Equal(t, int64(2), first.Version)

	// A writer that read version 1 has lost the race.
	stale := intent("pi_1", "m1", base)
	stale.Status = models.StatusCanceled
	err := s.Update(func(tx *store.Tx) error { return tx.UpdateIntent(stale, 1) })
	assert.True(t, errors.Is(err, store.ErrVersionMismatch), "got %v", err)

	var got *models.PaymentIntent
	require.NoError(t, s.View(func(tx *store.Tx) error {
		var err error
		got, err = tx.IntentByProviderRef("pay_sim_1")
		return err
	}))
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestUpdateIntentRejectsImmutableChanges(t *testing.T) {
	s := newTestStore(t)
	p := intent("pi_1", "m1", base)
	p.ProviderReference = "pay_sim_1"
	insert(t, s, p)

	amount := p.Clone()
	amount.Amount = decimal.RequireFromString("11.00")
	err := s.Update(func(tx *store.Tx) error { return tx.UpdateIntent(amount, 1) })
	assert.True(t, errors.Is(err, store.ErrImmutableField), "amount: %v", err)

	ref := p.Clone()
	ref.ProviderReference = "pay_sim_2"
	err = s.Update(func(tx *store.Tx) error { return tx.UpdateIntent(ref, 1) })
	assert.True(t, errors.Is(err, store.ErrImmutableField), "reference: %v", err)
}

func TestFailedUnitOfWorkWritesNothing(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.Update(func(tx *store.Tx) error {
		if err := tx.InsertIntent(intent("pi_1", "m1", base)); err != nil {
			return err
		}
		if err := tx.AppendEvent(&models.PaymentEvent{IntentID: "pi_1", Type: models.EventIntentCreated}); err != nil {
			return err
		}
		return boom
	})
	require.Equal(t, boom, err)

	require.NoError(t, s.View(func(tx *store.Tx) error {
		_, err := tx.Intent("pi_1")
		assert.Equal(t, store.ErrNotFound, err)
		events, err := tx.Events("pi_1")
		assert.Empty(t, events)
		return err
	}))
}

func TestEventsKeepAppendOrder(t *testing.T) {
	s := newTestStore(t)
	types := []models.EventType{models.EventIntentCreated, models.EventConfirmRequested, models.EventSucceeded}

	require.NoError(t, s.Update(func(tx *store.Tx) error {
		for _, typ := range types {
			if err := tx.AppendEvent(&models.PaymentEvent{IntentID: "pi_1", Type: typ, CreatedAt: base}); err != nil {
				return err
			}
		}
		return tx.AppendEvent(&models.PaymentEvent{IntentID: "pi_2", Type: models.EventIntentCreated})
	}))

	require.NoError(t, s.View(func(tx *store.Tx) error {
		events, err := tx.Events("pi_1")
		require.NoError(t, err)
		require.Len(t, events, 3)
		for i, ev := range events {
			assert.Equal(t, types[i], ev.Type)
			assert.Equal(t, uint64(i+1), ev.Sequence)
		}
		return nil
	}))
}

func TestIdempotencyTupleIsUnique(t *testing.T) {
	s := newTestStore(t)
	rec := &models.IdempotencyRecord{
		MerchantID:     "m1",
		Key:            "k1",
		Operation:      models.OperationConfirm,
		TargetIntentID: "pi_1",
		Fingerprint:    "abc",
		ResultIntentID: "pi_1",
	}
	require.NoError(t, s.Update(func(tx *store.Tx) error { return tx.InsertIdempotency(rec) }))

	dup := *rec
	dup.Fingerprint = "def"
	err := s.Update(func(tx *store.Tx) error { return tx.InsertIdempotency(&dup) })
	assert.True(t, errors.Is(err, store.ErrDuplicateKey), "got %v", err)

	// Same key, different target intent or operation, is a different tuple.
	other := *rec
	other.TargetIntentID = "pi_2"
	create := *rec
	create.Operation = models.OperationCreate
	create.TargetIntentID = ""
	require.NoError(t, s.Update(func(tx *store.Tx) error {
		if err := tx.InsertIdempotency(&other); err != nil {
			return err
		}
		return tx.InsertIdempotency(&create)
	}))

	require.NoError(t, s.View(func(tx *store.Tx) error {
		got, err := tx.Idempotency(store.KeyOf(rec))
		require.NoError(t, err)
		assert.Equal(t, "abc", got.Fingerprint)
		return nil
	}))
}

func TestListIntentsFiltersAndPages(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		p := intent(fmt.Sprintf("pi_%d", i), "m1", base.Add(time.Duration(i)*time.Hour))
		if i%2 == 1 {
			p.Status = models.StatusCanceled
		}
		insert(t, s, p)
	}
	insert(t, s, intent("pi_other", "m2", base))

	require.NoError(t, s.View(func(tx *store.Tx) error {
		items, total, err := tx.ListIntents(store.IntentFilter{Merchant: "m1", Size: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, items, 2)
		assert.Equal(t, "pi_4", items[0].ID, "newest first")
		assert.Equal(t, "pi_3", items[1].ID)

		items, total, err = tx.ListIntents(store.IntentFilter{Merchant: "m1", Status: models.StatusCanceled, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, items, 2)

		items, total, err = tx.ListIntents(store.IntentFilter{
			Merchant: "m1",
			From:     base.Add(time.Hour),
			To:       base.Add(3 * time.Hour),
			Size:     10,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, "pi_3", items[0].ID)
		assert.Equal(t, "pi_1", items[2].ID)

		items, total, err = tx.ListIntents(store.IntentFilter{Merchant: "m1", Page: 3, Size: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Empty(t, items)

		items, _, err = tx.ListIntents(store.IntentFilter{Merchant: "nobody", Size: 10})
		require.NoError(t, err)
		assert.Empty(t, items)
		return nil
	}))
}

func TestAuditNewestFirst(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Update(func(tx *store.Tx) error {
		for i := 0; i < 3; i++ {
			if err := tx.AppendAudit(&models.AuditEntry{Actor: "m1", Action: fmt.Sprintf("A%d", i)}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(func(tx *store.Tx) error {
		entries, total, err := tx.Audit(0, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, entries, 2)
		assert.Equal(t, "A2", entries[0].Action)
		assert.Equal(t, "A1", entries[1].Action)

		entries, _, err = tx.Audit(1, 2)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "A0", entries[0].Action)
		return nil
	}))
}

func TestWebhookDeliveriesPerIntent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Update(func(tx *store.Tx) error {
		if err := tx.InsertWebhookDelivery(&models.WebhookDelivery{IntentID: "pi_1", EventType: "SUCCEEDED"}); err != nil {
			return err
		}
		return tx.InsertWebhookDelivery(&models.WebhookDelivery{IntentID: "pi_2", EventType: "FAILED"})
	}))

	require.NoError(t, s.View(func(tx *store.Tx) error {
		ds, err := tx.WebhookDeliveries("pi_1")
		require.NoError(t, err)
		require.Len(t, ds, 1)
		assert.Equal(t, "SUCCEEDED", ds[0].EventType)
		return nil
	}))
}

func TestAPIKeyPrefixIsWriteOnce(t *testing.T) {
	s := newTestStore(t)
	key := &models.APIKey{ID: "k1", MerchantID: "m1", Prefix: "pk_abcdefghi", Hash: "h", Status: models.APIKeyActive, CreatedAt: base}
	require.NoError(t, s.Update(func(tx *store.Tx) error { return tx.InsertAPIKey(key) }))

	clash := *key
	clash.ID = "k2"
	err := s.Update(func(tx *store.Tx) error { return tx.InsertAPIKey(&clash) })
	assert.True(t, errors.Is(err, store.ErrDuplicateKey), "got %v", err)

	err = s.View(func(tx *store.Tx) error {
		got, err := tx.APIKeyByPrefix("pk_abcdefghi")
		require.NoError(t, err)
		assert.Equal(t, "k1", got.ID)

		keys, err := tx.APIKeys("m1")
		require.NoError(t, err)
		assert.Len(t, keys, 1, "the rejected insert left no index entry")
		return nil
	})
	require.NoError(t, err)

	moved := *key
	moved.MerchantID = "m2"
	err = s.Update(func(tx *store.Tx) error { return tx.UpdateAPIKey(&moved) })
	assert.True(t, errors.Is(err, store.ErrImmutableField), "got %v", err)
}
