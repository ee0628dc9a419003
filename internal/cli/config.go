// Package cli wires configuration, adapters and the engine together for
// the arbor command. It keeps cmd/arbor itself down to flag parsing.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is consulted when no --config flag is given.
const DefaultConfigPath = "arbor.yaml"

// Config describes where trees come from and where answers go.
type Config struct {
	// Backend is the base URL of a remote questionnaire backend. When set
	// it serves both trees and user data.
	Backend string `yaml:"backend" json:"backend"`

	// Dir is a local directory of tree JSON files, used when no backend
	// is configured.
	Dir string `yaml:"dir" json:"dir"`

	// Redis is the address of a redis server for answer persistence.
	// Overrides the backend as the user data store.
	Redis         string `yaml:"redis" json:"redis"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`

	// UserKey identifies whose answers this session records. A random key
	// is generated when empty.
	UserKey string `yaml:"user_key" json:"user_key"`

	// SubmitOnInvalid allows advancing past trees with failing validation.
	SubmitOnInvalid bool `yaml:"submit_on_invalid" json:"submit_on_invalid"`
}

// LoadConfig reads a configuration file (YAML or JSON). A missing file at
// the default path is not an error; a missing explicit path is.
func LoadConfig(path string, explicit bool) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}
