package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	viper.Reset()
	path := writeConfigFile(t, `
accounts:
  - region: mali
    generation: legacy
    instance_id: i1
    access_token: t1
    active: true
health:
  probe_number: "+22376000000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "mali", cfg.Accounts[0].Region)
	assert.Equal(t, 10, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Breaker.Threshold)
}

func TestLoadRejectsMissingProbeNumber(t *testing.T) {
	viper.Reset()
	path := writeConfigFile(t, `
accounts:
  - region: mali
    generation: legacy
    instance_id: i1
    access_token: t1
    active: true
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe number")
}

func TestLoadRejectsDuplicateAccountRegions(t *testing.T) {
	viper.Reset()
	path := writeConfigFile(t, `
accounts:
  - region: mali
    generation: legacy
    instance_id: i1
    access_token: t1
    active: true
  - region: mali
    generation: v2
    account_id: a2
    secret: s2
    active: true
health:
  probe_number: "+22376000000"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate account region")
}

func TestLoadRejectsInconsistentRetryDelays(t *testing.T) {
	viper.Reset()
	path := writeConfigFile(t, `
retry:
  base_delay: 1h
  max_delay: 30m
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry delays")
}
