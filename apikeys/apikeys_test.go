package apikeys_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arkantrust/payment-intents/apikeys"
	"github.com/arkantrust/payment-intents/audit"
	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/store"
)

func newService(t *testing.T) (*apikeys.Service, *audit.Sink) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := audit.New(s, logger)
	return apikeys.New(s, sink, logger, apikeys.WithHashCost(bcrypt.MinCost)), sink
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Secret, "pk_"))
	assert.Equal(t, created.Secret[:apikeys.PrefixLength], created.Key.Prefix)
	assert.NotContains(t, created.Key.Hash, created.Secret)
	assert.Equal(t, models.APIKeyActive, created.Key.Status)

	merchant, err := svc.Authenticate(ctx, created.Secret)
	require.NoError(t, err)
	assert.Equal(t, "m1", merchant)

	other, err := svc.Create(ctx, "m1")
	require.NoError(t, err)
	assert.NotEqual(t, created.Secret, other.Secret)
}

func TestAuthenticateRejects(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "m1")
	require.NoError(t, err)

	tests := map[string]string{
		"empty":           "",
		"short":           "pk_abc",
		"unknown prefix":  "pk_" + strings.Repeat("z", 43),
		"wrong remainder": created.Key.Prefix + strings.Repeat("x", 34),
	}
	for name, secret := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, secret)
			assert.True(t, errors.Is(err, apikeys.ErrInvalidKey), "got %v", err)
		})
	}
}

func TestRevoke(t *testing.T) {
	svc, sink := newService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "m1")
	require.NoError(t, err)

	_, err = svc.Revoke(ctx, "m2", created.Key.ID)
	assert.True(t, errors.Is(err, apikeys.ErrNotFound), "other merchants cannot revoke, got %v", err)

	revoked, err := svc.Revoke(ctx, "m1", created.Key.ID)
	require.NoError(t, err)
	assert.Equal(t, models.APIKeyRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)

	again, err := svc.Revoke(ctx, "m1", created.Key.ID)
	require.NoError(t, err)
	assert.Equal(t, revoked.RevokedAt.UTC(), again.RevokedAt.UTC())

	_, err = svc.Authenticate(ctx, created.Secret)
	assert.True(t, errors.Is(err, apikeys.ErrInvalidKey), "got %v", err)

	_, err = svc.Revoke(ctx, "m1", "missing")
	assert.True(t, errors.Is(err, apikeys.ErrNotFound), "got %v", err)

	entries, total, err := sink.List(0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total, "a repeated revoke is not audited")
	assert.Equal(t, audit.ActionAPIKeyRevoked, entries[0].Action)
	assert.Equal(t, audit.ActionAPIKeyCreated, entries[1].Action)
}

func TestListIsMerchantScoped(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	first, err := svc.Create(ctx, "m1")
	require.NoError(t, err)
	second, err := svc.Create(ctx, "m1")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "m2")
	require.NoError(t, err)

	keys, err := svc.List(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	ids := []string{keys[0].ID, keys[1].ID}
	assert.ElementsMatch(t, []string{first.Key.ID, second.Key.ID}, ids)

	keys, err = svc.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
