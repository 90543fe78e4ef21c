package config

import "time"

// RetentionConfig holds data retention settings. Initialize loads and
// validates them; no other component reads them, and the operator
// runs no cleanup loop, so nothing is deleted on their account.
type RetentionConfig struct {
	// TaskRetentionDays is the configured number of days to keep
	// completed tasks. The task schema has no deleted_at column.
	TaskRetentionDays int `yaml:"task_retention_days"`

	// LedgerEventTTL is the configured maximum age of ledger JSONL
	// files on disk.
	LedgerEventTTL time.Duration `yaml:"ledger_event_ttl"`

	// CleanupInterval is the configured cleanup period.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		TaskRetentionDays: 90,
		LedgerEventTTL:    90 * 24 * time.Hour,
		CleanupInterval:   12 * time.Hour,
	}
}
