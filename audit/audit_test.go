package audit_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkantrust/payment-intents/audit"
	"github.com/arkantrust/payment-intents/store"
)

func TestRecordAndList(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sink := audit.New(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	sink.Record(ctx, "merchant-1", audit.ActionIntentCreated, "pi_1")
	sink.Record(ctx, "merchant-1", audit.ActionIntentConfirmed, "pi_1")
	sink.Record(ctx, "provider", audit.ActionWebhookProcessed, "pi_1")

	entries, total, err := sink.List(0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionWebhookProcessed, entries[0].Action)
	assert.Equal(t, "provider", entries[0].Actor)
	assert.Equal(t, audit.ActionIntentConfirmed, entries[1].Action)

	entries, _, err = sink.List(1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionIntentCreated, entries[0].Action)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestRecordAfterCloseIsSwallowed(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	sink := audit.New(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NotPanics(t, func() {
		sink.Record(context.Background(), "merchant-1", audit.ActionIntentCanceled, "pi_1")
	})
}
