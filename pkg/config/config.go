// Package config loads the Operator's on-disk configuration: a YAML
// file describing the HTTP server, database, safety pattern
// overrides, reconciler tuning, and sharding/gossip topology, plus
// the directories holding the policy catalog and the audit ledger.
package config

import (
	"time"

	"github.com/nexops/operator/pkg/database"
	"github.com/nexops/operator/pkg/reconciler"
	"github.com/nexops/operator/pkg/safety"
)

// Config is the umbrella configuration object returned by
// Initialize and used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	Server     *ServerConfig
	Database   *database.Config
	Safety     safety.Config
	Reconciler reconciler.Config
	Shard      *ShardConfig
	Gossip     *GossipConfig
	Retention  *RetentionConfig

	// PolicyDir holds policy pack YAML files and an optional
	// service_registry.yaml, consumed directly by policy.Load.
	PolicyDir string

	// LedgerDir holds the append-only JSONL audit ledger files,
	// consumed directly by ledger.New.
	LedgerDir string
}

// ServerConfig holds the HTTP listener address and registry tuning.
type ServerConfig struct {
	ListenAddr       string        `yaml:"listen_addr"`
	OfflineThreshold time.Duration `yaml:"offline_threshold"`
}

// ShardConfig tunes the consistent-hash ring backing collaboration
// sharding.
type ShardConfig struct {
	Count        int `yaml:"count"`
	VirtualNodes int `yaml:"virtual_nodes"`
}

// GossipConfig tunes the anti-entropy replication protocol run
// between shards.
type GossipConfig struct {
	IntervalMs          int           `yaml:"interval_ms"`
	Fanout              int           `yaml:"fanout"`
	MaxOperationsPerMsg int           `yaml:"max_operations_per_msg"`
	AntiEntropyInterval time.Duration `yaml:"anti_entropy_interval"`
}

// Initialize is defined in loader.go

// ConfigStats contains a summary of loaded configuration for
// startup logging.
type ConfigStats struct {
	ShardCount int
	PolicyDir  string
	LedgerDir  string
	ListenAddr string
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	stats := ConfigStats{PolicyDir: c.PolicyDir, LedgerDir: c.LedgerDir}
	if c.Shard != nil {
		stats.ShardCount = c.Shard.Count
	}
	if c.Server != nil {
		stats.ListenAddr = c.Server.ListenAddr
	}
	return stats
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}
