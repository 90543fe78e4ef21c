package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexops/operator/pkg/reconciler"
	"github.com/nexops/operator/pkg/safety"
)

func validConfig() *Config {
	return &Config{
		configDir:  "/etc/operator",
		Server:     DefaultServerConfig(),
		Database:   DefaultDatabaseConfig(),
		Safety:     safety.DefaultConfig(),
		Reconciler: reconciler.DefaultConfig(),
		Shard:      DefaultShardConfig(),
		Gossip:     DefaultGossipConfig(),
		Retention:  DefaultRetentionConfig(),
		PolicyDir:  "/etc/operator/policy",
		LedgerDir:  "/var/lib/operator/ledger",
	}
}

func TestValidateAll_ValidConfig(t *testing.T) {
	require.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidateServer(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddr = ""
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen_addr")
}

func TestValidateDatabase_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Port = 70000
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestValidateDatabase_IdleExceedsOpen(t *testing.T) {
	cfg := validConfig()
	cfg.Database.MaxOpenConns = 5
	cfg.Database.MaxIdleConns = 10
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_idle_conns")
}

func TestValidateSafety_RejectsInvalidRegex(t *testing.T) {
	cfg := validConfig()
	cfg.Safety.BlocklistPatterns = []string{"(unclosed"}
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "safety")
}

func TestValidateReconciler_ThresholdOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Reconciler.LowQueueThreshold = 100
	cfg.Reconciler.HighQueueThreshold = 10
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "high_queue_threshold")
}

func TestValidateReconciler_ErrorRateOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Reconciler.ErrorRateThreshold = 1.5
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error_rate_threshold")
}

func TestValidateShard_ZeroCount(t *testing.T) {
	cfg := validConfig()
	cfg.Shard.Count = 0
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard")
}

func TestValidateGossip_ZeroFanout(t *testing.T) {
	cfg := validConfig()
	cfg.Gossip.Fanout = 0
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fanout")
}

func TestValidateRetention_NonPositiveCleanupInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.CleanupInterval = 0
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup_interval")
}

func TestValidateAll_RequiresPolicyAndLedgerDirs(t *testing.T) {
	cfg := validConfig()
	cfg.PolicyDir = ""
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy_dir")
}
