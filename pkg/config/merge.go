package config

import (
	"fmt"

	"dario.cat/mergo"

	"github.com/nexops/operator/pkg/reconciler"
	"github.com/nexops/operator/pkg/safety"
)

// mergeSafetyConfig merges a user-supplied safety override onto the
// built-in pattern lists. Non-zero user fields override; pattern
// slices append rather than replace, so a user file can extend the
// built-in blocklist without having to repeat it.
func mergeSafetyConfig(user *safety.Config) (safety.Config, error) {
	cfg := safety.DefaultConfig()
	if user == nil {
		return cfg, nil
	}
	if err := mergo.Merge(&cfg, user, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return safety.Config{}, fmt.Errorf("failed to merge safety config: %w", err)
	}
	return cfg, nil
}

// mergeReconcilerConfig merges a user-supplied reconciler override
// onto the built-in tuning defaults. Non-zero user fields override.
func mergeReconcilerConfig(user *reconciler.Config) (reconciler.Config, error) {
	cfg := reconciler.DefaultConfig()
	if user == nil {
		return cfg, nil
	}
	if err := mergo.Merge(&cfg, user, mergo.WithOverride); err != nil {
		return reconciler.Config{}, fmt.Errorf("failed to merge reconciler config: %w", err)
	}
	return cfg, nil
}
