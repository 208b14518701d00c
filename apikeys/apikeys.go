// Package apikeys issues and verifies merchant API keys.
//
// A key is "pk_" followed by 32 random bytes in unpadded base64url. The first
// PrefixLength characters are stored in clear and index the key; the whole
// secret is only kept as a bcrypt hash and is shown once, on creation.
package apikeys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/arkantrust/payment-intents/audit"
	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/store"
)

// Header carries an API key on a request.
const Header = "X-API-KEY"

const (
	secretPrefix = "pk_"
	secretBytes  = 32

	// PrefixLength is how much of a secret is stored in clear.
	PrefixLength = 12

	maxInsertAttempts = 3
)

var (
	// ErrNotFound covers keys that do not exist and keys of other merchants.
	ErrNotFound = errors.New("api key not found")

	// ErrInvalidKey is returned by Authenticate for any key that does not
	// resolve to an active key.
	ErrInvalidKey = errors.New("invalid api key")
)

// AuditSink receives one fact per key created or revoked.
type AuditSink interface {
	Record(ctx context.Context, actor, action, detail string)
}

// Service manages API keys.
type Service struct {
	store  *store.Store
	audit  AuditSink
	logger *slog.Logger
	now    func() time.Time
	cost   int
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHashCost sets the bcrypt cost. Out-of-range values fall back to
// bcrypt.DefaultCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// New creates a Service.
func New(st *store.Store, sink AuditSink, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: st, audit: sink, logger: logger, now: time.Now, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	if s.cost < bcrypt.MinCost || s.cost > bcrypt.MaxCost {
		s.cost = bcrypt.DefaultCost
	}
	return s
}

// Created is a freshly issued key together with its only clear-text copy.
type Created struct {
	Key    *models.APIKey
	Secret string
}

// Create issues a new active key for merchantID.
func (s *Service) Create(ctx context.Context, merchantID string) (*Created, error) {
	if merchantID == "" {
		return nil, errors.New("merchant is required")
	}
	for attempt := 1; ; attempt++ {
		secret, err := newSecret()
		if err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
		if err != nil {
			return nil, fmt.Errorf("hash api key: %w", err)
		}
		key := &models.APIKey{
			ID:         uuid.NewString(),
			MerchantID: merchantID,
			Prefix:     secret[:PrefixLength],
			Hash:       string(hash),
			Status:     models.APIKeyActive,
			CreatedAt:  s.now().UTC(),
		}

		err = s.store.Update(func(tx *store.Tx) error { return tx.InsertAPIKey(key) })
		if errors.Is(err, store.ErrDuplicateKey) && attempt < maxInsertAttempts {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create api key: %w", err)
		}

		s.audit.Record(ctx, merchantID, audit.ActionAPIKeyCreated, "apiKeyId="+key.ID)
		s.logger.InfoContext(ctx, "api key created", "api_key_id", key.ID, "merchant_id", merchantID, "prefix", key.Prefix)
		return &Created{Key: key, Secret: secret}, nil
	}
}

// List returns the merchant's keys, newest first.
func (s *Service) List(_ context.Context, merchantID string) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := s.store.View(func(tx *store.Tx) error {
		var err error
		keys, err = tx.APIKeys(merchantID)
		return err
	})
	return keys, err
}

// Revoke deactivates one of the merchant's keys. Revoking a revoked key
// returns it unchanged.
func (s *Service) Revoke(ctx context.Context, merchantID, id string) (*models.APIKey, error) {
	var (
		key     *models.APIKey
		changed bool
	)
	err := s.store.Update(func(tx *store.Tx) error {
		current, err := tx.APIKey(id)
		if errors.Is(err, store.ErrNotFound) || (err == nil && current.MerchantID != merchantID) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		key = current
		if current.Status == models.APIKeyRevoked {
			return nil
		}
		now := s.now().UTC()
		key.Status = models.APIKeyRevoked
		key.RevokedAt = &now
		changed = true
		return tx.UpdateAPIKey(key)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.audit.Record(ctx, merchantID, audit.ActionAPIKeyRevoked, "apiKeyId="+id)
		s.logger.InfoContext(ctx, "api key revoked", "api_key_id", id, "merchant_id", merchantID)
	}
	return key, nil
}

// Authenticate returns the merchant owning secret.
func (s *Service) Authenticate(_ context.Context, secret string) (string, error) {
	if len(secret) < PrefixLength {
		return "", ErrInvalidKey
	}
	var key *models.APIKey
	err := s.store.View(func(tx *store.Tx) error {
		var err error
		key, err = tx.APIKeyByPrefix(secret[:PrefixLength])
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", err
	}
	if key.Status != models.APIKeyActive {
		return "", ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(secret)); err != nil {
		return "", ErrInvalidKey
	}
	return key.MerchantID, nil
}

func newSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return secretPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
