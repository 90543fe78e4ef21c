package config

import (
	"fmt"

	"github.com/nexops/operator/pkg/safety"
)

// Validator validates configuration comprehensively with clear error messages
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *Validator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := v.validateDatabase(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}

	if err := v.validateSafety(); err != nil {
		return fmt.Errorf("safety validation failed: %w", err)
	}

	if err := v.validateReconciler(); err != nil {
		return fmt.Errorf("reconciler validation failed: %w", err)
	}

	if err := v.validateShard(); err != nil {
		return fmt.Errorf("shard validation failed: %w", err)
	}

	if err := v.validateGossip(); err != nil {
		return fmt.Errorf("gossip validation failed: %w", err)
	}

	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}

	if v.cfg.PolicyDir == "" {
		return NewValidationError("policy", "policy_dir", fmt.Errorf("required"))
	}
	if v.cfg.LedgerDir == "" {
		return NewValidationError("ledger", "ledger_dir", fmt.Errorf("required"))
	}

	return nil
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if s == nil {
		return fmt.Errorf("server configuration is nil")
	}
	if s.ListenAddr == "" {
		return NewValidationError("server", "listen_addr", fmt.Errorf("required"))
	}
	if s.OfflineThreshold <= 0 {
		return NewValidationError("server", "offline_threshold", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	db := v.cfg.Database
	if db == nil {
		return fmt.Errorf("database configuration is nil")
	}
	if db.Host == "" {
		return NewValidationError("database", "host", fmt.Errorf("required"))
	}
	if db.Port <= 0 || db.Port > 65535 {
		return NewValidationError("database", "port", fmt.Errorf("must be between 1 and 65535, got %d", db.Port))
	}
	if db.Database == "" {
		return NewValidationError("database", "database", fmt.Errorf("required"))
	}
	if db.MaxOpenConns < 1 {
		return NewValidationError("database", "max_open_conns", fmt.Errorf("must be at least 1"))
	}
	if db.MaxIdleConns < 0 || db.MaxIdleConns > db.MaxOpenConns {
		return NewValidationError("database", "max_idle_conns", fmt.Errorf("must be between 0 and max_open_conns"))
	}
	return nil
}

// validateSafety exercises the pattern compilation safety.New already
// performs, surfacing a malformed regex at startup rather than on the
// first command a task tries to run.
func (v *Validator) validateSafety() error {
	if _, err := safety.New(v.cfg.Safety); err != nil {
		return NewValidationError("safety", "", err)
	}
	return nil
}

func (v *Validator) validateReconciler() error {
	r := v.cfg.Reconciler
	if r.ReconcileInterval <= 0 {
		return NewValidationError("reconciler", "reconcile_interval", fmt.Errorf("must be positive"))
	}
	if r.ScaleStep < 1 {
		return NewValidationError("reconciler", "scale_step", fmt.Errorf("must be at least 1"))
	}
	if r.LowQueueThreshold < 0 {
		return NewValidationError("reconciler", "low_queue_threshold", fmt.Errorf("must be non-negative"))
	}
	if r.HighQueueThreshold <= r.LowQueueThreshold {
		return NewValidationError("reconciler", "high_queue_threshold",
			fmt.Errorf("must be greater than low_queue_threshold, got high=%d low=%d", r.HighQueueThreshold, r.LowQueueThreshold))
	}
	if r.ErrorRateThreshold <= 0 || r.ErrorRateThreshold > 1 {
		return NewValidationError("reconciler", "error_rate_threshold", fmt.Errorf("must be between 0 and 1"))
	}
	if r.LatencyThresholdMultiplier <= 1 {
		return NewValidationError("reconciler", "latency_threshold_multiplier", fmt.Errorf("must be greater than 1"))
	}
	return nil
}

func (v *Validator) validateShard() error {
	s := v.cfg.Shard
	if s == nil {
		return fmt.Errorf("shard configuration is nil")
	}
	if s.Count < 1 {
		return NewValidationError("shard", "count", fmt.Errorf("must be at least 1"))
	}
	if s.VirtualNodes < 1 {
		return NewValidationError("shard", "virtual_nodes", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *Validator) validateGossip() error {
	g := v.cfg.Gossip
	if g == nil {
		return fmt.Errorf("gossip configuration is nil")
	}
	if g.IntervalMs < 1 {
		return NewValidationError("gossip", "interval_ms", fmt.Errorf("must be at least 1"))
	}
	if g.Fanout < 1 {
		return NewValidationError("gossip", "fanout", fmt.Errorf("must be at least 1"))
	}
	if g.MaxOperationsPerMsg < 1 {
		return NewValidationError("gossip", "max_operations_per_msg", fmt.Errorf("must be at least 1"))
	}
	if g.AntiEntropyInterval <= 0 {
		return NewValidationError("gossip", "anti_entropy_interval", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return fmt.Errorf("retention configuration is nil")
	}
	if r.TaskRetentionDays < 1 {
		return NewValidationError("retention", "task_retention_days", fmt.Errorf("must be at least 1"))
	}
	if r.LedgerEventTTL <= 0 {
		return NewValidationError("retention", "ledger_event_ttl", fmt.Errorf("must be positive"))
	}
	if r.CleanupInterval <= 0 {
		return NewValidationError("retention", "cleanup_interval", fmt.Errorf("must be positive"))
	}
	return nil
}
