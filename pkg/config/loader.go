package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nexops/operator/pkg/database"
	"github.com/nexops/operator/pkg/reconciler"
	"github.com/nexops/operator/pkg/safety"
)

// OperatorYAMLConfig represents the complete operator.yaml file structure.
type OperatorYAMLConfig struct {
	Server     *ServerConfig      `yaml:"server"`
	Database   *database.Config   `yaml:"database"`
	Safety     *safety.Config     `yaml:"safety"`
	Reconciler *reconciler.Config `yaml:"reconciler"`
	Shard      *ShardConfig       `yaml:"shard"`
	Gossip     *GossipConfig      `yaml:"gossip"`
	Retention  *RetentionConfig   `yaml:"retention"`
	PolicyDir  string             `yaml:"policy_dir"`
	LedgerDir  string             `yaml:"ledger_dir"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load operator.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user-defined overrides onto built-in defaults
//  5. Apply default values for anything left unset
//  6. Validate all configuration
//  7. Return Config ready for use
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"listen_addr", stats.ListenAddr,
		"shard_count", stats.ShardCount,
		"policy_dir", stats.PolicyDir,
		"ledger_dir", stats.LedgerDir)

	return cfg, nil
}

// load is the internal loader (not exported).
func load(configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadOperatorYAML()
	if err != nil {
		return nil, NewLoadError("operator.yaml", err)
	}

	safetyCfg, err := mergeSafetyConfig(yamlCfg.Safety)
	if err != nil {
		return nil, err
	}

	reconcilerCfg, err := mergeReconcilerConfig(yamlCfg.Reconciler)
	if err != nil {
		return nil, err
	}

	server := resolveServerConfig(yamlCfg.Server)
	dbCfg := resolveDatabaseConfig(yamlCfg.Database)
	shardCfg := resolveShardConfig(yamlCfg.Shard)
	gossipCfg := resolveGossipConfig(yamlCfg.Gossip)
	retentionCfg := resolveRetentionConfig(yamlCfg.Retention)

	policyDir := yamlCfg.PolicyDir
	if policyDir == "" {
		policyDir = filepath.Join(configDir, "policy")
	}
	ledgerDir := yamlCfg.LedgerDir
	if ledgerDir == "" {
		ledgerDir = filepath.Join(configDir, "ledger")
	}

	return &Config{
		configDir:  configDir,
		Server:     server,
		Database:   dbCfg,
		Safety:     safetyCfg,
		Reconciler: reconcilerCfg,
		Shard:      shardCfg,
		Gossip:     gossipCfg,
		Retention:  retentionCfg,
		PolicyDir:  policyDir,
		LedgerDir:  ledgerDir,
	}, nil
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using shell-style ${VAR} syntax.
	var missing []string
	data, missing = ExpandEnv(data)
	for _, name := range missing {
		slog.Warn("config references unset environment variable, expanding to empty string", "file", filename, "variable", name)
	}

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadOperatorYAML() (*OperatorYAMLConfig, error) {
	var cfg OperatorYAMLConfig
	if err := l.loadYAML("operator.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveServerConfig resolves HTTP server configuration, applying defaults.
func resolveServerConfig(y *ServerConfig) *ServerConfig {
	cfg := DefaultServerConfig()
	if y == nil {
		return cfg
	}
	if y.ListenAddr != "" {
		cfg.ListenAddr = y.ListenAddr
	}
	if y.OfflineThreshold > 0 {
		cfg.OfflineThreshold = y.OfflineThreshold
	}
	return cfg
}

// resolveDatabaseConfig resolves database connection configuration, applying defaults.
func resolveDatabaseConfig(y *database.Config) *database.Config {
	cfg := DefaultDatabaseConfig()
	if y == nil {
		return cfg
	}
	if y.Host != "" {
		cfg.Host = y.Host
	}
	if y.Port != 0 {
		cfg.Port = y.Port
	}
	if y.User != "" {
		cfg.User = y.User
	}
	if y.Password != "" {
		cfg.Password = y.Password
	}
	if y.Database != "" {
		cfg.Database = y.Database
	}
	if y.SSLMode != "" {
		cfg.SSLMode = y.SSLMode
	}
	if y.MaxOpenConns != 0 {
		cfg.MaxOpenConns = y.MaxOpenConns
	}
	if y.MaxIdleConns != 0 {
		cfg.MaxIdleConns = y.MaxIdleConns
	}
	if y.ConnMaxLifetime != 0 {
		cfg.ConnMaxLifetime = y.ConnMaxLifetime
	}
	if y.ConnMaxIdleTime != 0 {
		cfg.ConnMaxIdleTime = y.ConnMaxIdleTime
	}
	return cfg
}

// resolveShardConfig resolves sharding configuration, applying defaults.
func resolveShardConfig(y *ShardConfig) *ShardConfig {
	cfg := DefaultShardConfig()
	if y == nil {
		return cfg
	}
	if y.Count > 0 {
		cfg.Count = y.Count
	}
	if y.VirtualNodes > 0 {
		cfg.VirtualNodes = y.VirtualNodes
	}
	return cfg
}

// resolveGossipConfig resolves gossip protocol configuration, applying defaults.
func resolveGossipConfig(y *GossipConfig) *GossipConfig {
	cfg := DefaultGossipConfig()
	if y == nil {
		return cfg
	}
	if y.IntervalMs > 0 {
		cfg.IntervalMs = y.IntervalMs
	}
	if y.Fanout > 0 {
		cfg.Fanout = y.Fanout
	}
	if y.MaxOperationsPerMsg > 0 {
		cfg.MaxOperationsPerMsg = y.MaxOperationsPerMsg
	}
	if y.AntiEntropyInterval > 0 {
		cfg.AntiEntropyInterval = y.AntiEntropyInterval
	}
	return cfg
}

// resolveRetentionConfig resolves retention configuration, applying defaults.
func resolveRetentionConfig(y *RetentionConfig) *RetentionConfig {
	cfg := DefaultRetentionConfig()
	if y == nil {
		return cfg
	}
	if y.TaskRetentionDays > 0 {
		cfg.TaskRetentionDays = y.TaskRetentionDays
	}
	if y.LedgerEventTTL > 0 {
		cfg.LedgerEventTTL = y.LedgerEventTTL
	}
	if y.CleanupInterval > 0 {
		cfg.CleanupInterval = y.CleanupInterval
	}
	return cfg
}
