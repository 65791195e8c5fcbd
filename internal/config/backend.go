package config

import (
	"fmt"
	"os"
	"strconv"
)

// BackendConfig configures framepace-backend.
type BackendConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Metrics mounts /metrics on the main listener.
	Metrics bool `yaml:"metrics"`
}

// DefaultBackendConfig returns the built-in defaults.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Port:     DefaultPort,
		LogLevel: DefaultLogLevel,
		Metrics:  true,
	}
}

// LoadBackend resolves defaults, the optional YAML file at path and the environment.
func LoadBackend(path string) (BackendConfig, error) {
	cfg := DefaultBackendConfig()
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if os.Getenv("PORT") != "" {
		cfg.Port = Port()
	}
	if os.Getenv("LOG_LEVEL") != "" {
		cfg.LogLevel = LogLevel()
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c *BackendConfig) Addr() string {
	return ":" + c.Port
}

// Validate checks the configuration.
func (c *BackendConfig) Validate() error {
	p, err := strconv.Atoi(c.Port)
	if err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("port must be 1-65535, got %q", c.Port)
	}
	return nil
}
