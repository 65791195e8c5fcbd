// Package hub fans frames and status updates out to viewers.
//
// A single goroutine (Run) owns the subscriber set; websocket viewers and
// MJPEG streams subscribe with a bounded queue and are dropped when they
// fall behind instead of slowing the broadcaster.
package hub

// MessageType tells a viewer writer which websocket frame type to use.
type MessageType int

const (
	// JSONMessage carries a status or stats document as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage carries one encoded camera frame as a binary frame.
	BinaryMessage
)

// Message is one item queued for every subscriber.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps already marshaled JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps a frame payload. The slice is shared by all
// subscribers and must not be modified after broadcast.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
