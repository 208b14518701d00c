package store

import (
	"fmt"
	"strings"

	"github.com/arkantrust/payment-intents/models"
)

// IdempotencyKey identifies one logical operation instance. TargetIntentID
// is only set for confirm.
type IdempotencyKey struct {
	MerchantID     string
	Operation      models.Operation
	Key            string
	TargetIntentID string
}

// bytes joins the tuple with NUL separators. Callers must keep NUL out of
// every part; the payments package rejects such keys before they get here.
func (k IdempotencyKey) bytes() []byte {
	parts := []string{k.MerchantID, string(k.Operation), k.Key}
	if k.TargetIntentID != "" {
		parts = append(parts, k.TargetIntentID)
	}
	return []byte(strings.Join(parts, "\x00"))
}

// KeyOf returns the tuple a record is stored under.
func KeyOf(r *models.IdempotencyRecord) IdempotencyKey {
	return IdempotencyKey{
		MerchantID:     r.MerchantID,
		Operation:      r.Operation,
		Key:            r.Key,
		TargetIntentID: r.TargetIntentID,
	}
}

// Idempotency returns the record stored under k, or ErrNotFound.
func (t *Tx) Idempotency(k IdempotencyKey) (*models.IdempotencyRecord, error) {
	var r models.IdempotencyRecord
	if err := getJSON(t.tx.Bucket(bucketIdempotency), k.bytes(), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertIdempotency writes r once. A record already stored under the same
// tuple yields ErrDuplicateKey and is left untouched.
func (t *Tx) InsertIdempotency(r *models.IdempotencyRecord) error {
	b := t.tx.Bucket(bucketIdempotency)
	key := KeyOf(r).bytes()
	if b.Get(key) != nil {
		return fmt.Errorf("idempotency key %q for %s: %w", r.Key, r.Operation, ErrDuplicateKey)
	}
	return putJSON(b, key, r)
}
