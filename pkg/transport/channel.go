package transport

import (
	"errors"

	"github.com/teslashibe/go-framepace/pkg/capture"
)

var (
	// ErrNotConnected is returned when no channel is open.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrSendBufferFull is returned when the write queue is full; the message is dropped.
	ErrSendBufferFull = errors.New("transport: send buffer full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport: closed")
)

// Event tags used on the channel.
const (
	EventNotify = "netin"
	EventFrame  = "streamingvideo"
)

// Channel is what the capture session needs from the transport.
// Both calls are fire-and-forget: an error means the message was dropped.
type Channel interface {
	Notify(event string, payload any) error
	SendFrame(p capture.FramePayload) error
}
