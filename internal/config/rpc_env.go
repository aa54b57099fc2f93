package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR_NAME} patterns in TOML values
var envVarPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// DetectEnvVar checks if a raw TOML value is a simple ${VAR_NAME} reference.
// Returns the variable name and true if the value is a pure env var reference.
func DetectEnvVar(rawValue string) (string, bool) {
	matches := envVarPattern.FindStringSubmatch(rawValue)
	if len(matches) == 2 {
		return matches[1], true
	}
	return "", false
}

// GenerateEnvVarName generates a conventional env var name for a network's RPC URL.
// Examples: sepolia -> SEPOLIA_RPC_URL, celo-sepolia -> CELO_SEPOLIA_RPC_URL
func GenerateEnvVarName(networkName string) string {
	name := strings.ToUpper(networkName)
	name = strings.NewReplacer("-", "_", ".", "_").Replace(name)
	return name + "_RPC_URL"
}

// expandRPCEndpoints expands env references in every endpoint. A pure
// ${VAR} reference whose variable is unset keeps its raw form so the
// fork resolver can name the missing variable.
func expandRPCEndpoints(raw map[string]string) map[string]string {
	expanded := make(map[string]string, len(raw))
	for name, value := range raw {
		url := os.ExpandEnv(value)
		if _, isVar := DetectEnvVar(value); isVar && url == "" {
			url = value
		}
		expanded[name] = url
	}
	return expanded
}
