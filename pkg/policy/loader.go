package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type serviceRegistryFile struct {
	Services map[string]ServiceRegistryEntry `yaml:"services"`
}

// Load reads service_registry.yaml and every policies.*.yaml file
// under configDir and builds an Engine from them. A missing
// service_registry.yaml is tolerated (defaults apply to every host);
// a missing or empty configDir yields an engine with no packs, which
// denies everything by default.
func Load(configDir string) (*Engine, error) {
	registry, err := loadServiceRegistry(filepath.Join(configDir, "service_registry.yaml"))
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(configDir, "policies.*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("policy: glob policy files: %w", err)
	}

	packs := make(map[string]PolicyPack, len(matches))
	for _, path := range matches {
		pack, err := loadPolicyPack(path)
		if err != nil {
			return nil, fmt.Errorf("policy: %s: %w", path, err)
		}
		packs[pack.Scope] = pack
	}

	return NewEngine(packs, registry), nil
}

func loadServiceRegistry(path string) (map[string]ServiceRegistryEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]ServiceRegistryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("policy: read service registry: %w", err)
	}
	var raw serviceRegistryFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("policy: parse service registry: %w", err)
	}
	if raw.Services == nil {
		raw.Services = map[string]ServiceRegistryEntry{}
	}
	return raw.Services, nil
}

func loadPolicyPack(path string) (PolicyPack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyPack{}, fmt.Errorf("read: %w", err)
	}
	var pack PolicyPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return PolicyPack{}, fmt.Errorf("parse: %w", err)
	}
	if pack.Scope == "" {
		pack.Scope = "*"
	}
	if pack.DefaultStance == "" {
		pack.DefaultStance = Deny
	}
	if pack.DefaultLedgerLevel == "" {
		pack.DefaultLedgerLevel = LedgerDecision
	}
	for i := range pack.Policies {
		if pack.Policies[i].Action == "" {
			pack.Policies[i].Action = "*"
		}
		if pack.Policies[i].Resource == "" {
			pack.Policies[i].Resource = "*"
		}
		if pack.Policies[i].Effect == "" {
			pack.Policies[i].Effect = Deny
		}
		if pack.Policies[i].LedgerLevel == "" {
			pack.Policies[i].LedgerLevel = LedgerDecision
		}
		if pack.Policies[i].PolicyVersion == "" {
			pack.Policies[i].PolicyVersion = pack.Version
		}
	}
	return pack, nil
}
