package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/ferr"
)

// LoadYAMLFile reads a YAML document from disk, expands ${VAR} references
// against the process environment, and wraps the result as a configtree.Node.
func LoadYAMLFile(path string) (configtree.Node, error) {
	var raw map[string]interface{}
	data, err := os.ReadFile(path)
	if err != nil {
		return configtree.Absent, ferr.New(ferr.KindIO, "config", "LoadYAMLFile", "read "+path, err)
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return configtree.Absent, ferr.New(ferr.KindConfig, "config", "LoadYAMLFile", "parse "+path, err)
	}
	expanded := expandEnvVarsInData(raw)
	return configtree.FromInterface(expanded), nil
}

// LoadYAMLString parses a YAML document already in memory (e.g. a request's
// system_config/app_config overlay), expanding environment references the
// same way LoadYAMLFile does.
func LoadYAMLString(content string) (configtree.Node, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return configtree.Absent, ferr.New(ferr.KindConfig, "config", "LoadYAMLString", "parse inline overlay", err)
	}
	return configtree.FromInterface(expandEnvVarsInData(raw)), nil
}

// ToYAML serializes a Node back to YAML bytes, used by the round-trip
// property (parse -> serialize -> parse is semantically identical).
func ToYAML(n configtree.Node) ([]byte, error) {
	out, err := yaml.Marshal(configtree.ToInterface(n))
	if err != nil {
		return nil, fmt.Errorf("marshal config tree: %w", err)
	}
	return out, nil
}
