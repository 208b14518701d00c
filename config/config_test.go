package config_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkantrust/payment-intents/config"
	"github.com/arkantrust/payment-intents/payments"
)

func clearLegacyEnv(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_PATH", "")
}

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "succeed", cfg.Provider.Policy)
	assert.Equal(t, "payments.db", cfg.Database.Path)
}

func TestLoadWithoutFile(t *testing.T) {
	clearLegacyEnv(t)
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestWriteThenLoad(t *testing.T) {
	clearLegacyEnv(t)
	path := filepath.Join(t.TempDir(), "conf", "payments.yaml")

	want := config.Default()
	want.Server.Port = 9090
	want.Server.ReadTimeout = 5 * time.Second
	want.Provider.Policy = "pending"
	want.RateLimit.RequestsPerSecond = 2.5
	require.NoError(t, config.Write(path, want))

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEnvironmentOverrides(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("PAYMENTS_PROVIDER_POLICY", "fail")
	t.Setenv("PAYMENTS_SERVER_WRITE_TIMEOUT", "45s")
	t.Setenv("DB_PATH", "/tmp/legacy.db")
	t.Setenv("PORT", "7070")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "fail", cfg.Provider.Policy)
	assert.Equal(t, 45*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "/tmp/legacy.db", cfg.Database.Path)
	assert.Equal(t, 7070, cfg.Server.Port)

	t.Setenv("PAYMENTS_SERVER_PORT", "6060")
	cfg, err = config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"port", func(c *config.Config) { c.Server.Port = 0 }},
		{"db path", func(c *config.Config) { c.Database.Path = "" }},
		{"secret", func(c *config.Config) { c.Auth.JWTSecret = "" }},
		{"ttl", func(c *config.Config) { c.Auth.TokenTTL = 0 }},
		{"rate", func(c *config.Config) { c.RateLimit.Burst = 0 }},
		{"node", func(c *config.Config) { c.Provider.NodeID = 1024 }},
		{"policy", func(c *config.Config) { c.Provider.Policy = "sometimes" }},
		{"level", func(c *config.Config) { c.Log.Level = "loud" }},
		{"format", func(c *config.Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := config.Default()
	cfg.RateLimit = config.RateLimitConfig{Enabled: false}
	assert.NoError(t, cfg.Validate(), "limits are ignored when disabled")
}

func TestValidateAcceptsSimulatorPolicies(t *testing.T) {
	for _, p := range []payments.Policy{payments.PolicySucceed, payments.PolicyFail, payments.PolicyPending} {
		cfg := config.Default()
		cfg.Provider.Policy = string(p)
		assert.NoError(t, cfg.Validate(), p)
	}

	cfg := config.Default()
	cfg.Provider.Policy = "Succeed"
	assert.ErrorContains(t, cfg.Validate(), "provider.policy")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := config.LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "intent_id", "pi_1")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"intent_id":"pi_1"`)
}
