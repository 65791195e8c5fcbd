package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-framepace/pkg/pacing"
	"github.com/teslashibe/go-framepace/pkg/protocol"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	t.Setenv("FRAMEPACE_FPS", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PORT", "")
	assert.Equal(t, DefaultBackendURL, BackendURL())
	assert.Equal(t, DefaultFPS, FPS())
	assert.Equal(t, DefaultLogLevel, LogLevel())
	assert.Equal(t, DefaultPort, Port())

	t.Setenv("BACKEND_URL", "ws://10.0.0.2:7000")
	t.Setenv("FRAMEPACE_FPS", "30")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PORT", "8080")
	assert.Equal(t, "ws://10.0.0.2:7000", BackendURL())
	assert.Equal(t, 30.0, FPS())
	assert.Equal(t, "debug", LogLevel())
	assert.Equal(t, "8080", Port())
}

func TestFPSIgnoresInvalid(t *testing.T) {
	for _, v := range []string{"fast", "0", "-5"} {
		t.Setenv("FRAMEPACE_FPS", v)
		assert.Equal(t, DefaultFPS, FPS(), v)
	}
}

func TestDefaultStreamerConfigIsValid(t *testing.T) {
	cfg := DefaultStreamerConfig()
	require.NoError(t, cfg.Validate())

	target := cfg.Target()
	assert.Equal(t, pacing.DefaultTarget(), target)
}

func TestLoadStreamerFile(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	t.Setenv("FRAMEPACE_FPS", "")
	t.Setenv("LOG_LEVEL", "")

	path := writeFile(t, `
log_level: debug
camera_backend: mock
preset: vga
camera:
  quality: 0.7
pacing:
  fps: 10
  p: 0.5
  decay: 0.8
transport:
  url: ws://backend:7000
  format: msgpack
  send_buffer: 4
autostart: true
health_interval: 250ms
`)

	cfg, err := LoadStreamer(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mock", cfg.CameraBackend)
	assert.Equal(t, 640, cfg.Camera.Width, "preset applied")
	assert.Equal(t, 480, cfg.Camera.Height)
	assert.Equal(t, 0.7, cfg.Camera.Quality, "explicit key overrides preset")
	assert.Equal(t, "ws://backend:7000", cfg.Transport.URL)
	assert.Equal(t, protocol.FormatMsgpack, cfg.Transport.Format)
	assert.Equal(t, "/streaming", cfg.Transport.Namespace, "unset keys keep defaults")
	assert.True(t, cfg.Autostart)
	assert.Equal(t, 250*time.Millisecond, cfg.HealthInterval)

	target := cfg.Target()
	assert.Equal(t, 100*time.Millisecond, target.Interval)
	assert.Equal(t, 0.5, target.P)
	assert.Equal(t, pacing.DefaultI, target.I)
	assert.Equal(t, 0.8, target.Decay)
}

func TestLoadStreamerEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "pacing:\n  fps: 10\n")
	t.Setenv("FRAMEPACE_FPS", "24")
	t.Setenv("BACKEND_URL", "ws://env:7000")

	cfg, err := LoadStreamer(path)
	require.NoError(t, err)
	assert.Equal(t, 24.0, cfg.Pacing.FPS)
	assert.Equal(t, "ws://env:7000", cfg.Transport.URL)
}

func TestLoadStreamerErrors(t *testing.T) {
	_, err := LoadStreamer(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadStreamer(writeFile(t, "no_such_key: 1\n"))
	assert.Error(t, err)

	_, err = LoadStreamer(writeFile(t, "preset: 8k\n"))
	assert.Error(t, err)
}

func TestStreamerValidate(t *testing.T) {
	zero := 0.0
	bad := 1.5

	tests := []struct {
		name    string
		mutate  func(*StreamerConfig)
		wantErr bool
	}{
		{"default", func(c *StreamerConfig) {}, false},
		{"zero fps", func(c *StreamerConfig) { c.Pacing.FPS = 0 }, true},
		{"zero gain allowed", func(c *StreamerConfig) { c.Pacing.D = &zero }, false},
		{"decay out of range", func(c *StreamerConfig) { c.Pacing.Decay = &bad }, true},
		{"tiny camera", func(c *StreamerConfig) { c.Camera.Width = 1 }, true},
		{"http url", func(c *StreamerConfig) { c.Transport.URL = "http://x" }, true},
		{"unknown backend", func(c *StreamerConfig) { c.CameraBackend = "v4l2" }, true},
		{"no health interval", func(c *StreamerConfig) { c.HealthInterval = 0 }, true},
		{"no wait no interval", func(c *StreamerConfig) { c.WaitForBackend = false; c.HealthInterval = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultStreamerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadBackend(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := LoadBackend("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBackendConfig(), cfg)
	assert.Equal(t, ":7000", cfg.Addr())

	cfg, err = LoadBackend(writeFile(t, "port: \"9000\"\nmetrics: false\n"))
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.False(t, cfg.Metrics)

	t.Setenv("PORT", "9100")
	cfg, err = LoadBackend("")
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
}

func TestBackendValidate(t *testing.T) {
	for port, ok := range map[string]bool{"7000": true, "0": false, "http": false, "70000": false} {
		cfg := DefaultBackendConfig()
		cfg.Port = port
		if ok {
			assert.NoError(t, cfg.Validate(), port)
		} else {
			assert.Error(t, cfg.Validate(), port)
		}
	}
}
