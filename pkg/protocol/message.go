// Package protocol defines the event messages exchanged on the /streaming channel.
// This package is shared between the streamer (camera side) and the backend.
//
// Every message is an envelope {type, ts, data}. The envelope and its data are
// encoded either as JSON (websocket text frames, the default) or as
// MessagePack (websocket binary frames), selected per connection by Format.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// MessageType identifies the event carried by a message
type MessageType string

const (
	// Streamer → Backend
	TypeNetIn          MessageType = "netin"          // Free-form notification
	TypeStreamingVideo MessageType = "streamingvideo" // One encoded frame

	// Backend → Streamer
	TypeConnected MessageType = "connected" // Sent once after the channel opens
	TypeResponse  MessageType = "response"  // Acknowledgement / echo

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Format selects the wire encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// Binary reports whether messages in this format travel as binary frames.
func (f Format) Binary() bool {
	return f == FormatMsgpack
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == FormatJSON || f == FormatMsgpack
}

func (f Format) marshal(v interface{}) ([]byte, error) {
	if f == FormatMsgpack {
		return msgpack.Marshal(v)
	}
	return json.Marshal(v)
}

func (f Format) unmarshal(data []byte, v interface{}) error {
	if f == FormatMsgpack {
		return msgpack.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

// Message is the envelope for all channel messages.
// Data holds the event payload already encoded in the message's Format.
type Message struct {
	Type      MessageType
	Timestamp int64 // Unix milliseconds
	Data      []byte

	format Format
}

type jsonEnvelope struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type msgpackEnvelope struct {
	Type      MessageType        `msgpack:"type"`
	Timestamp int64              `msgpack:"ts,omitempty"`
	Data      msgpack.RawMessage `msgpack:"data,omitempty"`
}

// NewMessage creates a message with the current timestamp, encoding data in f.
func NewMessage(f Format, msgType MessageType, data interface{}) (*Message, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("unknown format %q", f)
	}

	var raw []byte
	if data != nil {
		var err error
		raw, err = f.marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
		format:    f,
	}, nil
}

// Format returns the encoding of the message.
func (m *Message) Format() Format {
	if m.format == "" {
		return FormatJSON
	}
	return m.format
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if len(m.Data) == 0 {
		return nil
	}
	return m.Format().unmarshal(m.Data, v)
}

// Bytes returns the encoded envelope
func (m *Message) Bytes() ([]byte, error) {
	if m.Format() == FormatMsgpack {
		return msgpack.Marshal(msgpackEnvelope{Type: m.Type, Timestamp: m.Timestamp, Data: m.Data})
	}
	return json.Marshal(jsonEnvelope{Type: m.Type, Timestamp: m.Timestamp, Data: m.Data})
}

// ParseMessage decodes an envelope encoded in f.
func ParseMessage(f Format, data []byte) (*Message, error) {
	switch f {
	case FormatMsgpack:
		var env msgpackEnvelope
		if err := msgpack.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("failed to parse message: %w", err)
		}
		return &Message{Type: env.Type, Timestamp: env.Timestamp, Data: env.Data, format: f}, nil
	case FormatJSON:
		var env jsonEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("failed to parse message: %w", err)
		}
		return &Message{Type: env.Type, Timestamp: env.Timestamp, Data: env.Data, format: f}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
}

// =============================================================================
// Message payloads
// =============================================================================

// NoticeData is a free-form text notification ("Connected!", "Run Estimator!", "OK").
type NoticeData struct {
	Data string `json:"data" msgpack:"data"`
}

// FrameData contains one encoded video frame.
// Image is base64 in JSON and raw bytes in MessagePack.
type FrameData struct {
	Image      []byte  `json:"data" msgpack:"data"`
	MimeType   string  `json:"mime" msgpack:"mime"`
	Quality    float64 `json:"quality,omitempty" msgpack:"quality,omitempty"`
	Width      int     `json:"width" msgpack:"width"`
	Height     int     `json:"height" msgpack:"height"`
	Seq        uint64  `json:"seq,omitempty" msgpack:"seq,omitempty"`
	CapturedAt int64   `json:"captured_at,omitempty" msgpack:"captured_at,omitempty"` // Unix milliseconds
}

// PingData contains ping information
type PingData struct {
	ID string `json:"id" msgpack:"id"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id" msgpack:"id"`
	PingTS    int64  `json:"ping_ts" msgpack:"ping_ts"`
	PongTS    int64  `json:"pong_ts" msgpack:"pong_ts"`
	LatencyMs int64  `json:"latency_ms" msgpack:"latency_ms"`
}
