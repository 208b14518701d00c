package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/arkantrust/payment-intents/models"
)

// IntentFilter narrows ListIntents. Zero values mean "no constraint" except
// Merchant, which is always required.
type IntentFilter struct {
	Merchant string
	Status   models.Status
	From     time.Time // inclusive
	To       time.Time // inclusive
	Page     int       // zero-based
	Size     int
}

// merchantIndexKey orders a merchant's intents by creation time, ties broken
// by id.
func merchantIndexKey(createdAt time.Time, id string) []byte {
	k := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(k, uint64(createdAt.UnixNano()))
	return append(k, id...)
}

func timeKey(t time.Time) []byte {
	return itob(uint64(t.UnixNano()))
}

// Intent returns the intent with the given id.
func (t *Tx) Intent(id string) (*models.PaymentIntent, error) {
	var p models.PaymentIntent
	if err := getJSON(t.tx.Bucket(bucketIntents), []byte(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// IntentByProviderRef resolves a provider reference to its intent.
func (t *Tx) IntentByProviderRef(ref string) (*models.PaymentIntent, error) {
	id := t.tx.Bucket(bucketProviderRefs).Get([]byte(ref))
	if id == nil {
		return nil, ErrNotFound
	}
	return t.Intent(string(id))
}

// InsertIntent persists a new intent. It fails with ErrDuplicateKey when the
// id, or a provider reference the intent already carries, is taken.
func (t *Tx) InsertIntent(p *models.PaymentIntent) error {
	b := t.tx.Bucket(bucketIntents)
	if b.Get([]byte(p.ID)) != nil {
		return fmt.Errorf("intent %s: %w", p.ID, ErrDuplicateKey)
	}
	if p.ProviderReference != "" {
		if err := t.bindProviderRef(p.ProviderReference, p.ID); err != nil {
			return err
		}
	}

	idx, err := t.tx.Bucket(bucketMerchantIntents).CreateBucketIfNotExists([]byte(p.MerchantID))
	if err != nil {
		return err
	}
	if err := idx.Put(merchantIndexKey(p.CreatedAt, p.ID), []byte(p.ID)); err != nil {
		return err
	}
	return putJSON(b, []byte(p.ID), p)
}

// UpdateIntent writes p only if the stored version equals expectedVersion.
//
// On success p.Version becomes expectedVersion+1. On a stale read it returns
// ErrVersionMismatch and writes nothing. Amount, currency, merchant and a
// provider reference that was already set cannot change.
func (t *Tx) UpdateIntent(p *models.PaymentIntent, expectedVersion int64) error {
	b := t.tx.Bucket(bucketIntents)

	var current models.PaymentIntent
	if err := getJSON(b, []byte(p.ID), &current); err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("intent %s at version %d, expected %d: %w",
			p.ID, current.Version, expectedVersion, ErrVersionMismatch)
	}

	switch {
	case current.MerchantID != p.MerchantID:
		return fmt.Errorf("intent %s merchant: %w", p.ID, ErrImmutableField)
	case !current.Amount.Equal(p.Amount) || current.Currency != p.Currency:
		return fmt.Errorf("intent %s amount: %w", p.ID, ErrImmutableField)
	case current.ProviderReference != "" && current.ProviderReference != p.ProviderReference:
		return fmt.Errorf("intent %s provider reference: %w", p.ID, ErrImmutableField)
	}

	if current.ProviderReference == "" && p.ProviderReference != "" {
		if err := t.bindProviderRef(p.ProviderReference, p.ID); err != nil {
			return err
		}
	}

	p.Version = expectedVersion + 1
	return putJSON(b, []byte(p.ID), p)
}

func (t *Tx) bindProviderRef(ref, id string) error {
	refs := t.tx.Bucket(bucketProviderRefs)
	if existing := refs.Get([]byte(ref)); existing != nil && string(existing) != id {
		return fmt.Errorf("provider reference %s: %w", ref, ErrDuplicateKey)
	}
	return refs.Put([]byte(ref), []byte(id))
}

// ListIntents returns one page of the merchant's intents matching f, newest
// first, plus the total number of matches.
func (t *Tx) ListIntents(f IntentFilter) ([]models.PaymentIntent, int, error) {
	items := []models.PaymentIntent{}

	idx := t.tx.Bucket(bucketMerchantIntents).Bucket([]byte(f.Merchant))
	if idx == nil {
		return items, 0, nil
	}

	var matches []models.PaymentIntent
	err := t.scanMerchant(idx, f.From, f.To, func(id []byte) error {
		p, err := t.Intent(string(id))
		if err != nil {
			return err
		}
		if f.Status != "" && p.Status != f.Status {
			return nil
		}
		matches = append(matches, *p)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	// The index is ascending; callers want newest first.
	for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
		matches[i], matches[j] = matches[j], matches[i]
	}

	start, end := page(len(matches), f.Page, f.Size)
	items = append(items, matches[start:end]...)
	return items, len(matches), nil
}

func (t *Tx) scanMerchant(idx *bolt.Bucket, from, to time.Time, fn func(id []byte) error) error {
	c := idx.Cursor()

	var k, v []byte
	if from.IsZero() {
		k, v = c.First()
	} else {
		k, v = c.Seek(timeKey(from))
	}

	var upper []byte
	if !to.IsZero() {
		upper = timeKey(to)
	}

	for ; k != nil; k, v = c.Next() {
		if upper != nil && bytes.Compare(k[:8], upper) > 0 {
			break
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}
