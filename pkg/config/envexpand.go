package config

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} and bare $VAR references, the same
// shell-style syntax os.ExpandEnv recognizes, so ExpandEnv can report
// which names it substituted.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnv expands environment variables in operator.yaml content
// using shell-style ${VAR} / $VAR syntax, and reports which referenced
// variables were unset in the environment.
//
// os.ExpandEnv silently substitutes an empty string for an unset
// variable, which for the Operator's config (database credentials,
// the fleet-control address, policy overrides) tends to surface later
// as a confusing downstream validation failure rather than a clear
// "X is not set" error at load time. Callers should treat a non-empty
// missing list as a configuration warning at minimum.
func ExpandEnv(data []byte) (expanded []byte, missing []string) {
	seen := make(map[string]bool)
	for _, match := range envVarPattern.FindAllStringSubmatch(string(data), -1) {
		name := match[1]
		if name == "" {
			name = match[2]
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := os.LookupEnv(name); !ok {
			missing = append(missing, name)
		}
	}
	return []byte(os.ExpandEnv(string(data))), missing
}
