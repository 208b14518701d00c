package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkantrust/payment-intents/auth"
	"github.com/arkantrust/payment-intents/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { configPath = "" })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORT", "")
	t.Setenv("DB_PATH", "")
	t.Setenv("PAYMENTS_DATABASE_PATH", filepath.Join(dir, "payments.db"))
	cfgPath := filepath.Join(dir, "payments.yaml")

	out, err := run(t, "config", "init", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, cfgPath)

	_, err = run(t, "config", "init", cfgPath)
	assert.Error(t, err, "existing files are not overwritten")

	out, err = run(t, "token", "--merchant", "merchant-1", "--config", cfgPath)
	require.NoError(t, err)
	merchant, err := auth.Parse([]byte(config.DevJWTSecret), "payment-intents", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "merchant-1", merchant)

	out, err = run(t, "config", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, out, config.DevJWTSecret)
	assert.Contains(t, out, "policy: succeed")

	out, err = run(t, "inspect", "audit", "--config", cfgPath)
	require.NoError(t, err)
	var page struct {
		TotalElements int `json:"totalElements"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 0, page.TotalElements)

	_, err = run(t, "inspect", "events", "missing", "--config", cfgPath)
	assert.ErrorContains(t, err, "not found")
}
