package protocol

import "time"

// Handshake and lifecycle notices.
const (
	NoticeConnected = "Connected!"
	NoticeStarted   = "Run Estimator!"
	NoticeOK        = "OK"
)

// NewNoticeMessage creates a text notification of the given type.
func NewNoticeMessage(f Format, msgType MessageType, text string) (*Message, error) {
	return NewMessage(f, msgType, NoticeData{Data: text})
}

// NewFrameMessage creates a streamingvideo message from an encoded image.
func NewFrameMessage(f Format, frame FrameData) (*Message, error) {
	return NewMessage(f, TypeStreamingVideo, frame)
}

// NewResponseMessage creates a response echo.
func NewResponseMessage(f Format, text string) (*Message, error) {
	return NewNoticeMessage(f, TypeResponse, text)
}

// NewPingMessage creates a ping message
func NewPingMessage(f Format, id string) (*Message, error) {
	return NewMessage(f, TypePing, PingData{ID: id})
}

// NewPongMessage creates a pong response message
func NewPongMessage(f Format, id string, pingTS int64) (*Message, error) {
	pongTS := time.Now().UnixMilli()
	return NewMessage(f, TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// GetNoticeData extracts a notice from a message
func (m *Message) GetNoticeData() (*NoticeData, error) {
	var data NoticeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
