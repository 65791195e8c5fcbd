// Package transport delivers frame payloads to the backend over a websocket.
//
// The Client dials a single namespace endpoint (default /streaming), sends a
// handshake notice once the channel opens and then accepts fire-and-forget
// sends: messages are queued for a single writer goroutine and dropped when
// the queue is full or the channel is down. There are no retries; the next
// frame supersedes a lost one.
package transport

import (
	"fmt"
	"net/url"
	"time"

	"github.com/teslashibe/go-framepace/pkg/protocol"
)

// Config holds transport configuration.
type Config struct {
	// URL is the backend base URL, e.g. "ws://localhost:7000".
	URL string `yaml:"url" json:"url"`

	// Namespace is the endpoint path. Default: "/streaming"
	Namespace string `yaml:"namespace" json:"namespace"`

	// ClientID is appended to the namespace path. Empty generates a UUID.
	ClientID string `yaml:"client_id" json:"client_id"`

	// Format is the wire encoding. Default: json
	Format protocol.Format `yaml:"format" json:"format"`

	// SendBuffer is the number of queued messages before sends are dropped.
	SendBuffer int `yaml:"send_buffer" json:"send_buffer"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
	WriteWait        time.Duration `yaml:"write_wait" json:"write_wait"`
	PongWait         time.Duration `yaml:"pong_wait" json:"pong_wait"`

	// ReconnectInterval is the pause between connection attempts in Run.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" json:"reconnect_interval"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:               "ws://localhost:7000",
		Namespace:         "/streaming",
		Format:            protocol.FormatJSON,
		SendBuffer:        8,
		HandshakeTimeout:  10 * time.Second,
		WriteWait:         5 * time.Second,
		PongWait:          60 * time.Second,
		ReconnectInterval: 2 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.Namespace == "" || c.Namespace[0] != '/' {
		return fmt.Errorf("namespace must start with '/', got %q", c.Namespace)
	}
	if !c.Format.Valid() {
		return fmt.Errorf("format must be json or msgpack, got %q", c.Format)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	if c.WriteWait <= 0 || c.PongWait <= 0 {
		return fmt.Errorf("write_wait and pong_wait must be positive")
	}
	return nil
}

// Endpoint returns the full websocket URL for clientID.
func (c *Config) Endpoint(clientID string) string {
	return c.URL + c.Namespace + "/" + url.PathEscape(clientID)
}

// HealthURL returns the backend's HTTP health endpoint.
func (c *Config) HealthURL() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	if u.Scheme == "wss" {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Path = "/health"
	return u.String()
}
