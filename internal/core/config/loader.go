package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Loading.ModuleDir == "" {
		cfg.Loading.ModuleDir = "modules"
	}
	if cfg.Loading.ModelDir == "" {
		cfg.Loading.ModelDir = "models"
	}
	if cfg.Loading.ValidationTimeout == 0 {
		cfg.Loading.ValidationTimeout = Duration(5 * time.Second)
	}
	if cfg.Loading.OpenVINOTimeout == 0 {
		cfg.Loading.OpenVINOTimeout = Duration(10 * time.Second)
	}
	if cfg.Recovery.BackoffUnit == 0 {
		cfg.Recovery.BackoffUnit = Duration(2 * time.Second)
	}

	return &cfg, nil
}
