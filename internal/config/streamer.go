package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/teslashibe/go-framepace/pkg/camera"
	"github.com/teslashibe/go-framepace/pkg/pacing"
	"github.com/teslashibe/go-framepace/pkg/transport"
)

// PacingConfig sets the frame rate and controller gains. Nil gains use the
// controller defaults.
type PacingConfig struct {
	FPS   float64  `yaml:"fps"`
	P     *float64 `yaml:"p"`
	I     *float64 `yaml:"i"`
	D     *float64 `yaml:"d"`
	Decay *float64 `yaml:"decay"`
}

// StreamerConfig configures the framepace streamer.
type StreamerConfig struct {
	LogLevel string `yaml:"log_level"`

	// CameraBackend is auto, gocv or mock.
	CameraBackend string `yaml:"camera_backend"`

	// Preset names a camera preset applied before Camera overrides.
	Preset string        `yaml:"preset"`
	Camera camera.Config `yaml:"camera"`

	Pacing    PacingConfig     `yaml:"pacing"`
	Transport transport.Config `yaml:"transport"`

	// Autostart begins streaming as soon as the channel is up.
	Autostart bool `yaml:"autostart"`

	// WaitForBackend polls the backend health endpoint before dialing.
	WaitForBackend bool          `yaml:"wait_for_backend"`
	HealthInterval time.Duration `yaml:"health_interval"`

	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultStreamerConfig returns the built-in defaults.
func DefaultStreamerConfig() StreamerConfig {
	tc := transport.DefaultConfig()
	tc.URL = DefaultBackendURL
	return StreamerConfig{
		LogLevel:       DefaultLogLevel,
		CameraBackend:  "auto",
		Camera:         camera.DefaultConfig(),
		Pacing:         PacingConfig{FPS: DefaultFPS},
		Transport:      tc,
		WaitForBackend: true,
		HealthInterval: time.Second,
	}
}

// LoadStreamer resolves defaults, the optional YAML file at path and the
// environment.
func LoadStreamer(path string) (StreamerConfig, error) {
	cfg := DefaultStreamerConfig()
	if path != "" {
		// A preset in the file is applied first so explicit camera keys win.
		var probe struct {
			Preset string `yaml:"preset"`
		}
		if err := loadYAMLLoose(path, &probe); err != nil {
			return cfg, err
		}
		if probe.Preset != "" {
			preset := camera.GetPreset(probe.Preset)
			if preset == nil {
				return cfg, fmt.Errorf("unknown camera preset %q", probe.Preset)
			}
			cfg.Camera = *preset
		}
		if err := loadYAML(path, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from BACKEND_URL, FRAMEPACE_FPS and LOG_LEVEL
// when they are non-empty.
func (c *StreamerConfig) ApplyEnv() {
	if os.Getenv("BACKEND_URL") != "" {
		c.Transport.URL = BackendURL()
	}
	if os.Getenv("FRAMEPACE_FPS") != "" {
		c.Pacing.FPS = FPS()
	}
	if os.Getenv("LOG_LEVEL") != "" {
		c.LogLevel = LogLevel()
	}
}

// Target builds the pacing target.
func (c *StreamerConfig) Target() pacing.Target {
	t := pacing.TargetForFPS(c.Pacing.FPS)
	if c.Pacing.P != nil {
		t.P = *c.Pacing.P
	}
	if c.Pacing.I != nil {
		t.I = *c.Pacing.I
	}
	if c.Pacing.D != nil {
		t.D = *c.Pacing.D
	}
	if c.Pacing.Decay != nil {
		t.Decay = *c.Pacing.Decay
	}
	return t
}

// Validate checks the whole configuration.
func (c *StreamerConfig) Validate() error {
	var errs []error
	if c.Pacing.FPS <= 0 {
		errs = append(errs, fmt.Errorf("pacing.fps must be positive, got %v", c.Pacing.FPS))
	} else if err := c.Target().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pacing: %w", err))
	}
	if problems := c.Camera.Validate(); len(problems) > 0 {
		errs = append(errs, fmt.Errorf("camera: %s", strings.Join(problems, "; ")))
	}
	if err := c.Transport.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}
	switch c.CameraBackend {
	case "auto", "gocv", "mock":
	default:
		errs = append(errs, fmt.Errorf("camera_backend must be auto, gocv or mock, got %q", c.CameraBackend))
	}
	if c.WaitForBackend && c.HealthInterval <= 0 {
		errs = append(errs, fmt.Errorf("health_interval must be positive"))
	}
	return errors.Join(errs...)
}
