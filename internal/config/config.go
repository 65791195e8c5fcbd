// Package config provides configuration for the framepace commands.
//
// Values are resolved in order: built-in defaults, an optional YAML file,
// environment variables, then command-line flags applied by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Default configuration.
const (
	DefaultBackendURL = "ws://localhost:7000"
	DefaultPort       = "7000"
	DefaultFPS        = 15.0
	DefaultLogLevel   = "info"
)

// BackendURL returns the backend URL from BACKEND_URL env var.
// Falls back to DefaultBackendURL if not set.
func BackendURL() string {
	if u := os.Getenv("BACKEND_URL"); u != "" {
		return u
	}
	return DefaultBackendURL
}

// FPS returns the target frame rate from FRAMEPACE_FPS env var.
// Falls back to DefaultFPS if unset or not a positive number.
func FPS() float64 {
	if v := os.Getenv("FRAMEPACE_FPS"); v != "" {
		if fps, err := strconv.ParseFloat(v, 64); err == nil && fps > 0 {
			return fps
		}
	}
	return DefaultFPS
}

// LogLevel returns the log level from LOG_LEVEL env var or default.
func LogLevel() string {
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		return l
	}
	return DefaultLogLevel
}

// Port returns the backend listen port from PORT env var or default.
func Port() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return DefaultPort
}

// loadYAML decodes path into out. Unknown keys are rejected.
func loadYAML(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// loadYAMLLoose decodes path into out, ignoring keys out does not declare.
func loadYAMLLoose(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
