// Package camera describes the constraints used when requesting a camera stream.
// The same constraints drive the off-screen raster size and encoder quality.
package camera

import "strconv"

// Config holds the capture constraints for a camera stream.
type Config struct {
	// Device identifies the camera. A bare number is a device index
	// ("0" is the first camera); anything else is passed through as a
	// path or pipeline string.
	Device string `yaml:"device" json:"device"`

	// === Resolution ===
	Width     int `yaml:"width" json:"width"`         // Raster width in pixels
	Height    int `yaml:"height" json:"height"`       // Raster height in pixels
	Framerate int `yaml:"framerate" json:"framerate"` // Requested device FPS

	// === Encoding ===
	// MimeType of the encoded payload. Only "image/jpeg" is produced today.
	MimeType string `yaml:"mime_type" json:"mime_type"`
	// Quality is the compression quality factor in (0, 1].
	Quality float64 `yaml:"quality" json:"quality"`

	// Mirror flips frames horizontally before encoding.
	Mirror bool `yaml:"mirror" json:"mirror"`
}

// Limits for validation.
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120

	MimeJPEG = "image/jpeg"
)

// DefaultConfig returns 320x240 JPEG at quality 0.9 from the first camera.
func DefaultConfig() Config {
	return Config{
		Device:    "0",
		Width:     320,
		Height:    240,
		Framerate: 30,
		MimeType:  MimeJPEG,
		Quality:   0.9,
	}
}

// DeviceIndex returns the numeric device index and true when Device is a number.
func (c *Config) DeviceIndex() (int, bool) {
	i, err := strconv.Atoi(c.Device)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// JPEGQuality returns Quality on the 1-100 scale used by JPEG encoders.
func (c *Config) JPEGQuality() int {
	q := int(c.Quality*100 + 0.5)
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device is required")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.MimeType != MimeJPEG {
		errors = append(errors, "mime_type must be image/jpeg")
	}
	if c.Quality <= 0 || c.Quality > 1 {
		errors = append(errors, "quality must be in (0, 1]")
	}

	return errors
}
