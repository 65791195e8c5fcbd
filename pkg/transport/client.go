package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-framepace/pkg/capture"
	"github.com/teslashibe/go-framepace/pkg/protocol"
)

// maxMessageSize bounds what the backend may send us; its messages are small.
const maxMessageSize = 64 * 1024

// outbound is a pre-encoded websocket message.
type outbound struct {
	wsType int
	data   []byte
}

// link is one open websocket and its pumps.
type link struct {
	ws        *websocket.Conn
	send      chan outbound
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func (l *link) close(err error) {
	l.closeOnce.Do(func() {
		l.err = err
		close(l.done)
		l.ws.Close()
	})
}

// Client is a websocket Channel to the backend.
type Client struct {
	cfg      Config
	clientID string
	logger   *slog.Logger
	dialer   websocket.Dialer

	mu     sync.RWMutex
	link   *link
	closed bool

	// Lifecycle callbacks
	onConnect    func()
	onDisconnect func(err error)

	// Stats
	messagesSent     atomic.Uint64
	messagesDropped  atomic.Uint64
	messagesReceived atomic.Uint64
}

// NewClient creates a client. It does not connect.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := cfg.ClientID
	if id == "" {
		id = uuid.New().String()
	}

	return &Client{
		cfg:      cfg,
		clientID: id,
		logger:   logger.With("client_id", id),
		dialer: websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}, nil
}

// ID returns the client identifier sent in the endpoint path.
func (c *Client) ID() string {
	return c.clientID
}

// OnConnect sets the callback invoked after each successful handshake.
func (c *Client) OnConnect(cb func()) {
	c.mu.Lock()
	c.onConnect = cb
	c.mu.Unlock()
}

// OnDisconnect sets the callback invoked when an open channel goes down.
func (c *Client) OnDisconnect(cb func(err error)) {
	c.mu.Lock()
	c.onDisconnect = cb
	c.mu.Unlock()
}

// Connected reports whether a channel is open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.link != nil
}

// Connect dials the backend, starts the pumps and sends the handshake notice.
// It returns once the channel is open; use Done to wait for it to close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.link != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	endpoint := c.cfg.Endpoint(c.clientID)
	ws, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	l := &link{
		ws:   ws,
		send: make(chan outbound, c.cfg.SendBuffer),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return ErrClosed
	}
	c.link = l
	onConnect := c.onConnect
	c.mu.Unlock()

	go c.writePump(l)
	go c.readPump(l)

	c.logger.Info("transport connected", "endpoint", endpoint, "format", c.cfg.Format)

	if err := c.Notify(EventNotify, protocol.NoticeConnected); err != nil {
		c.logger.Warn("handshake notice dropped", "error", err)
	}
	if onConnect != nil {
		onConnect()
	}
	return nil
}

// Done returns a channel closed when the current connection ends.
// It returns a closed channel when not connected.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.link == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.link.done
}

// Run keeps the channel open until ctx is done, reconnecting after
// ReconnectInterval whenever it drops.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.Connect(ctx); err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			c.logger.Warn("transport connect failed", "error", err)
		} else {
			select {
			case <-c.Done():
			case <-ctx.Done():
				return c.shutdown()
			}
		}

		select {
		case <-ctx.Done():
			return c.shutdown()
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

func (c *Client) shutdown() error {
	if err := c.Close(); err != nil {
		c.logger.Debug("transport close", "error", err)
	}
	return nil
}

// Notify sends a notification event. A string payload is wrapped as {data: payload}.
func (c *Client) Notify(event string, payload any) error {
	if s, ok := payload.(string); ok {
		payload = protocol.NoticeData{Data: s}
	}
	msg, err := protocol.NewMessage(c.cfg.Format, protocol.MessageType(event), payload)
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

// SendFrame sends one encoded frame as a streamingvideo event.
func (c *Client) SendFrame(p capture.FramePayload) error {
	if p.Empty() {
		return nil
	}
	msg, err := protocol.NewFrameMessage(c.cfg.Format, protocol.FrameData{
		Image:      p.Data,
		MimeType:   p.MimeType,
		Quality:    p.Quality,
		Width:      p.Width,
		Height:     p.Height,
		Seq:        p.Seq,
		CapturedAt: p.CapturedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

func (c *Client) enqueue(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	wsType := websocket.TextMessage
	if c.cfg.Format.Binary() {
		wsType = websocket.BinaryMessage
	}

	c.mu.RLock()
	l := c.link
	c.mu.RUnlock()
	if l == nil {
		c.messagesDropped.Add(1)
		return ErrNotConnected
	}

	select {
	case <-l.done:
		c.messagesDropped.Add(1)
		return ErrNotConnected
	default:
	}

	select {
	case l.send <- outbound{wsType: wsType, data: data}:
		return nil
	default:
		c.messagesDropped.Add(1)
		return ErrSendBufferFull
	}
}

// disconnect tears down l and reports it once.
func (c *Client) disconnect(l *link, err error) {
	l.close(err)

	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}
	c.link = nil
	onDisconnect := c.onDisconnect
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	c.logger.Warn("transport disconnected", "error", err)
	if onDisconnect != nil {
		onDisconnect(err)
	}
}

// readPump reads backend events and detects disconnection.
func (c *Client) readPump(l *link) {
	l.ws.SetReadLimit(maxMessageSize)
	l.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	l.ws.SetPongHandler(func(string) error {
		l.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		wsType, data, err := l.ws.ReadMessage()
		if err != nil {
			c.disconnect(l, err)
			return
		}
		l.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.messagesReceived.Add(1)

		format := protocol.FormatJSON
		if wsType == websocket.BinaryMessage {
			format = protocol.FormatMsgpack
		}
		c.handleMessage(format, data)
	}
}

func (c *Client) handleMessage(format protocol.Format, data []byte) {
	msg, err := protocol.ParseMessage(format, data)
	if err != nil {
		c.logger.Debug("unparseable message from backend", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeConnected, protocol.TypeResponse:
		if n, err := msg.GetNoticeData(); err == nil {
			c.logger.Debug("backend notice", "type", msg.Type, "data", n.Data)
		}
	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return
		}
		pong, err := protocol.NewPongMessage(c.cfg.Format, ping.ID, msg.Timestamp)
		if err == nil {
			c.enqueue(pong)
		}
	}
}

// writePump is the only goroutine that writes to the websocket.
func (c *Client) writePump(l *link) {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return

		case msg := <-l.send:
			l.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := l.ws.WriteMessage(msg.wsType, msg.data); err != nil {
				c.messagesDropped.Add(1)
				c.disconnect(l, err)
				return
			}
			c.messagesSent.Add(1)

		case <-ticker.C:
			l.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := l.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.disconnect(l, err)
				return
			}
		}
	}
}

// Close sends a close frame and tears the connection down.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	l := c.link
	c.link = nil
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	deadline := time.Now().Add(c.cfg.WriteWait)
	err := l.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	l.close(nil)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Stats contains client statistics
type Stats struct {
	Connected        bool   `json:"connected"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesDropped  uint64 `json:"messages_dropped"`
	MessagesReceived uint64 `json:"messages_received"`
}

// GetStats returns client statistics
func (c *Client) GetStats() Stats {
	return Stats{
		Connected:        c.Connected(),
		MessagesSent:     c.messagesSent.Load(),
		MessagesDropped:  c.messagesDropped.Load(),
		MessagesReceived: c.messagesReceived.Load(),
	}
}
