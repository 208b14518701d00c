package store

import (
	"fmt"

	"github.com/arkantrust/payment-intents/models"
)

// APIKey returns the key with the given id.
func (t *Tx) APIKey(id string) (*models.APIKey, error) {
	var k models.APIKey
	if err := getJSON(t.tx.Bucket(bucketAPIKeys), []byte(id), &k); err != nil {
		return nil, err
	}
	return &k, nil
}

// APIKeyByPrefix resolves a key prefix to its key, revoked or not.
func (t *Tx) APIKeyByPrefix(prefix string) (*models.APIKey, error) {
	id := t.tx.Bucket(bucketAPIKeyPrefixes).Get([]byte(prefix))
	if id == nil {
		return nil, ErrNotFound
	}
	return t.APIKey(string(id))
}

// InsertAPIKey persists a new key. Ids and prefixes are write-once; a
// collision on either yields ErrDuplicateKey.
func (t *Tx) InsertAPIKey(k *models.APIKey) error {
	b := t.tx.Bucket(bucketAPIKeys)
	if b.Get([]byte(k.ID)) != nil {
		return fmt.Errorf("api key %s: %w", k.ID, ErrDuplicateKey)
	}
	prefixes := t.tx.Bucket(bucketAPIKeyPrefixes)
	if prefixes.Get([]byte(k.Prefix)) != nil {
		return fmt.Errorf("api key prefix %s: %w", k.Prefix, ErrDuplicateKey)
	}
	if err := prefixes.Put([]byte(k.Prefix), []byte(k.ID)); err != nil {
		return err
	}

	idx, err := t.tx.Bucket(bucketMerchantAPIKeys).CreateBucketIfNotExists([]byte(k.MerchantID))
	if err != nil {
		return err
	}
	if err := idx.Put(merchantIndexKey(k.CreatedAt, k.ID), []byte(k.ID)); err != nil {
		return err
	}
	return putJSON(b, []byte(k.ID), k)
}

// UpdateAPIKey overwrites a stored key. Merchant and prefix cannot change.
func (t *Tx) UpdateAPIKey(k *models.APIKey) error {
	current, err := t.APIKey(k.ID)
	if err != nil {
		return err
	}
	if current.MerchantID != k.MerchantID || current.Prefix != k.Prefix {
		return fmt.Errorf("api key %s: %w", k.ID, ErrImmutableField)
	}
	return putJSON(t.tx.Bucket(bucketAPIKeys), []byte(k.ID), k)
}

// APIKeys returns the merchant's keys, newest first.
func (t *Tx) APIKeys(merchant string) ([]models.APIKey, error) {
	keys := []models.APIKey{}
	idx := t.tx.Bucket(bucketMerchantAPIKeys).Bucket([]byte(merchant))
	if idx == nil {
		return keys, nil
	}
	c := idx.Cursor()
	for k, id := c.Last(); k != nil; k, id = c.Prev() {
		key, err := t.APIKey(string(id))
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	return keys, nil
}
