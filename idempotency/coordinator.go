// Package idempotency guarantees that a client-initiated operation carrying
// an idempotency key has its side effects executed at most once per
// (merchant, operation[, intent]) tuple, and that retries get the original
// outcome back instead of running again.
//
// The protocol, as used by the payments orchestrator:
//
//  1. Fingerprint the canonical request payload before doing anything else.
//  2. Lookup the tuple. If a record exists, Resolve it against the
//     fingerprint: equal returns the original result, unequal is a
//     ErrConflict (the key was reused for a different request).
//  3. Otherwise execute the operation and Record the binding in the same
//     unit of work as the operation's own writes.
//  4. If Record reports store.ErrDuplicateKey, a concurrent caller
//     committed first. Re-read and Resolve against the winner's record.
//
// The fingerprint comparison, not the presence of the key alone, is what
// stops two different payloads under one key from being merged.
package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/store"
)

// ErrConflict is returned when a key is replayed with a payload whose
// fingerprint differs from the one first recorded under it.
var ErrConflict = errors.New("idempotency key already used with a different request payload")

// Fingerprint returns the hex SHA-256 digest of a canonical request payload.
// The same bytes always produce the same digest.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// CanonicalFingerprint fingerprints a JSON document independently of its
// key order and whitespace. Number literals are kept as written.
func CanonicalFingerprint(body []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	return Fingerprint(canonical), nil
}

// Request identifies one keyed invocation.
type Request struct {
	MerchantID string
	Operation  models.Operation
	Key        string

	// TargetIntentID scopes confirm keys to the intent being confirmed.
	TargetIntentID string

	Fingerprint string
}

func (r Request) key() store.IdempotencyKey {
	return store.IdempotencyKey{
		MerchantID:     r.MerchantID,
		Operation:      r.Operation,
		Key:            r.Key,
		TargetIntentID: r.TargetIntentID,
	}
}

// Coordinator reads and writes idempotency bindings inside a caller's unit
// of work.
type Coordinator struct {
	now func() time.Time
}

// New returns a Coordinator stamping records with now.
func New(now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{now: now}
}

// Lookup returns the record bound to req's tuple, or nil when the key has
// not been used for this operation yet.
func (c *Coordinator) Lookup(tx *store.Tx, req Request) (*models.IdempotencyRecord, error) {
	rec, err := tx.Idempotency(req.key())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return rec, nil
}

// Resolve compares a stored record with the fingerprint of the incoming
// request and returns the intent the original request produced.
func (c *Coordinator) Resolve(rec *models.IdempotencyRecord, fingerprint string) (string, error) {
	if rec.Fingerprint != fingerprint {
		return "", ErrConflict
	}
	return rec.ResultIntentID, nil
}

// Record persists the binding of req to resultIntentID. It returns an error
// wrapping store.ErrDuplicateKey when the tuple is already bound, which
// callers must treat as "another request completed first".
func (c *Coordinator) Record(tx *store.Tx, req Request, resultIntentID string) error {
	return tx.InsertIdempotency(&models.IdempotencyRecord{
		MerchantID:     req.MerchantID,
		Key:            req.Key,
		Operation:      req.Operation,
		TargetIntentID: req.TargetIntentID,
		Fingerprint:    req.Fingerprint,
		ResultIntentID: resultIntentID,
		CreatedAt:      c.now().UTC(),
	})
}
