// Package store provides a BoltDB-backed persistence layer for payment
// intents, their event timelines, idempotency records, webhook deliveries,
// audit entries and merchant API keys.
//
// BoltDB is an embedded key/value store. All data lives in a single file,
// so no external database process is required.
//
// Guarantees the payment core relies on
// -------------------------------------
//   - Atomic units of work: every Update call runs in one bolt read-write
//     transaction. If the callback returns an error nothing is written.
//   - Conditional writes: UpdateIntent only writes when the stored version
//     equals the version the caller read, and reports ErrVersionMismatch
//     otherwise. It never panics and never retries on its own.
//   - Uniqueness: intents, provider references, idempotency tuples and API
//     key prefixes are write-once. A second insert of the same key fails with
//     ErrDuplicateKey.
//   - Range queries: intents are indexed per merchant by creation time, so
//     listing by merchant and time window is a cursor seek, not a scan.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"
)

var (
	bucketIntents           = []byte("intents")
	bucketProviderRefs      = []byte("provider_refs")
	bucketMerchantIntents   = []byte("merchant_intents")
	bucketEvents            = []byte("events")
	bucketIdempotency       = []byte("idempotency")
	bucketWebhookDeliveries = []byte("webhook_deliveries")
	bucketAudit             = []byte("audit")
	bucketAPIKeys           = []byte("api_keys")
	bucketAPIKeyPrefixes    = []byte("api_key_prefixes")
	bucketMerchantAPIKeys   = []byte("merchant_api_keys")
)

var allBuckets = [][]byte{
	bucketIntents,
	bucketProviderRefs,
	bucketMerchantIntents,
	bucketEvents,
	bucketIdempotency,
	bucketWebhookDeliveries,
	bucketAudit,
	bucketAPIKeys,
	bucketAPIKeyPrefixes,
	bucketMerchantAPIKeys,
}

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when inserting a key that already exists.
	// Under concurrent first-writers it means another writer won the race.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrVersionMismatch is the failed outcome of a conditional write: the
	// stored version no longer matches the version the caller read.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrImmutableField is returned when an update would change a field that
	// is fixed after creation.
	ErrImmutableField = errors.New("immutable field changed")
)

// Store wraps a BoltDB database.
type Store struct {
	db *bolt.DB
}

// Options tunes how the database file is opened.
type Options struct {
	// Timeout bounds how long Open waits for the file lock. Zero means one
	// second.
	Timeout time.Duration
}

// New opens (or creates) a BoltDB database at the given path and ensures
// every bucket exists.
func New(path string) (*Store, error) {
	return Open(path, Options{})
}

// Open is New with explicit options.
func Open(path string, opts Options) (*Store, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is one unit of work against the store. It is only valid inside the
// callback passed to Update or View.
type Tx struct {
	tx *bolt.Tx
}

// Update runs fn in a read-write transaction. Writers are serialised by
// bolt; fn's error rolls back every write it made.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// View runs fn in a read-only transaction over a consistent snapshot.
func (s *Store) View(fn func(tx *Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// itob encodes a sequence number so that byte order matches numeric order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func getJSON(b *bolt.Bucket, key []byte, v any) error {
	data := b.Get(key)
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// appendJSON stores v under the bucket's next sequence number and returns
// that number. setSeq is called before marshalling so the stored record
// carries its own sequence.
func appendJSON(b *bolt.Bucket, setSeq func(uint64), v any) (uint64, error) {
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	setSeq(seq)
	return seq, putJSON(b, itob(seq), v)
}

// page returns the half-open window [start, end) of n items for a zero-based
// page. Non-positive sizes yield an empty window.
func page(n, pageNum, size int) (int, int) {
	if size <= 0 || pageNum < 0 {
		return 0, 0
	}
	start := pageNum * size
	if start > n {
		start = n
	}
	end := start + size
	if end > n {
		end = n
	}
	return start, end
}
