package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "operator.yaml"), []byte(contents), 0o644))
}

func TestInitialize_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitialize_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
database:
  host: db.internal
  database: operatordb
policy_dir: /etc/operator/policy
ledger_dir: /var/lib/operator/ledger
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 60*time.Second, cfg.Server.OfflineThreshold)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "operatordb", cfg.Database.Database)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "/etc/operator/policy", cfg.PolicyDir)
	assert.Equal(t, "/var/lib/operator/ledger", cfg.LedgerDir)
	assert.Equal(t, 16, cfg.Shard.Count)
	assert.NotEmpty(t, cfg.Safety.BlocklistPatterns)
}

func TestInitialize_SafetyPatternsAppendNotReplace(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
database:
  database: operatordb
policy_dir: /etc/operator/policy
ledger_dir: /var/lib/operator/ledger
safety:
  blocklist_patterns:
    - "^custom-danger$"
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Contains(t, cfg.Safety.BlocklistPatterns, "^custom-danger$")
	assert.Greater(t, len(cfg.Safety.BlocklistPatterns), 1)
}

func TestInitialize_EnvExpansion(t *testing.T) {
	t.Setenv("OPERATOR_TEST_DB_HOST", "expanded-host")

	dir := t.TempDir()
	writeConfigFile(t, dir, `
database:
  host: ${OPERATOR_TEST_DB_HOST}
  database: operatordb
policy_dir: /etc/operator/policy
ledger_dir: /var/lib/operator/ledger
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "expanded-host", cfg.Database.Host)
}

func TestInitialize_InvalidReconcilerFailsValidation(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
database:
  database: operatordb
policy_dir: /etc/operator/policy
ledger_dir: /var/lib/operator/ledger
reconciler:
  low_queue_threshold: 50
  high_queue_threshold: 10
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "high_queue_threshold")
}

func TestInitialize_DefaultPolicyAndLedgerDirs(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
database:
  database: operatordb
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "policy"), cfg.PolicyDir)
	assert.Equal(t, filepath.Join(dir, "ledger"), cfg.LedgerDir)
}
