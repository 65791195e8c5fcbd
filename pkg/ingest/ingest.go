// Package ingest is the backend end of the streaming channel.
//
// Streamers connect to /streaming/:id. Text frames carry JSON envelopes and
// binary frames MessagePack; replies use the format of the message they
// answer. Every streamingvideo event replaces the latest-frame slot, so a
// slow consumer only ever sees the newest frame. Frames are relayed as
// received and never decoded.
package ingest

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-framepace/pkg/metrics"
	"github.com/teslashibe/go-framepace/pkg/protocol"
)

// maxMessageSize bounds one inbound message; 1080p JPEGs fit comfortably.
const maxMessageSize = 4 * 1024 * 1024

// Frame is one received frame.
type Frame struct {
	ClientID   string    `json:"client_id"`
	Data       []byte    `json:"-"`
	MimeType   string    `json:"mime"`
	Quality    float64   `json:"quality"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	ReceivedAt time.Time `json:"received_at"`
	Size       int       `json:"size"`
}

// Conn is a connected streamer.
type Conn struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
	frames   uint64
}

// Send writes a message to the streamer.
func (c *Conn) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	wsType := websocket.TextMessage
	if msg.Format().Binary() {
		wsType = websocket.BinaryMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(wsType, data)
}

func (c *Conn) touch(frame bool) {
	c.mu.Lock()
	c.lastSeen = time.Now()
	if frame {
		c.frames++
	}
	c.mu.Unlock()
}

// Server accepts streamer connections.
type Server struct {
	logger *slog.Logger

	mu      sync.RWMutex
	streams map[string]*Conn
	onFrame []func(Frame)

	latest atomic.Pointer[Frame]

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	bytesReceived    atomic.Uint64
}

// NewServer creates an ingest server.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:  logger.With("component", "ingest"),
		streams: make(map[string]*Conn),
	}
}

// OnFrame adds a callback invoked for every received frame, in arrival order.
// Callbacks run on the connection's read goroutine and must not block.
func (s *Server) OnFrame(cb func(Frame)) {
	s.mu.Lock()
	s.onFrame = append(s.onFrame, cb)
	s.mu.Unlock()
}

// Latest returns the newest frame from any streamer.
func (s *Server) Latest() (Frame, bool) {
	f := s.latest.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

// RegisterRoutes registers the streaming websocket endpoint on a Fiber app.
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Use("/streaming", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	handler := websocket.New(s.handleStream, websocket.Config{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 4 * 1024,
	})
	app.Get("/streaming", handler)
	app.Get("/streaming/:id", handler)
}

// handleStream serves one streamer connection.
func (s *Server) handleStream(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.New().String()
	}

	conn := &Conn{
		ID:        id,
		Conn:      c,
		Connected: time.Now(),
		lastSeen:  time.Now(),
	}

	s.mu.Lock()
	if old, ok := s.streams[id]; ok {
		s.logger.Warn("replacing existing stream", "client_id", id)
		old.Conn.Close()
	}
	s.streams[id] = conn
	count := len(s.streams)
	s.mu.Unlock()

	metrics.AddIngestConnections(1)
	s.logger.Info("streamer connected", "client_id", id, "total", count)

	defer func() {
		s.mu.Lock()
		if s.streams[id] == conn {
			delete(s.streams, id)
		}
		count := len(s.streams)
		s.mu.Unlock()

		metrics.AddIngestConnections(-1)
		s.logger.Info("streamer disconnected", "client_id", id, "remaining", count)
	}()

	c.SetReadLimit(maxMessageSize)

	for {
		wsType, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read error", "client_id", id, "error", err)
			}
			return
		}

		format := protocol.FormatJSON
		if wsType == websocket.BinaryMessage {
			format = protocol.FormatMsgpack
		}

		s.messagesReceived.Add(1)
		s.handleMessage(conn, format, data)
	}
}

// handleMessage processes one message from a streamer.
func (s *Server) handleMessage(conn *Conn, format protocol.Format, data []byte) {
	msg, err := protocol.ParseMessage(format, data)
	if err != nil {
		s.logger.Debug("parse error", "client_id", conn.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeStreamingVideo:
		conn.touch(true)
		fd, err := msg.GetFrameData()
		if err != nil {
			s.logger.Debug("bad frame", "client_id", conn.ID, "error", err)
			return
		}
		s.storeFrame(conn.ID, format, fd)

	case protocol.TypeNetIn:
		conn.touch(false)
		notice, err := msg.GetNoticeData()
		if err != nil {
			return
		}
		s.logger.Info("streamer notice", "client_id", conn.ID, "data", notice.Data)
		s.reply(conn, format, notice.Data)

	case protocol.TypeConnected:
		conn.touch(false)
		s.reply(conn, format, protocol.NoticeOK)

	case protocol.TypePing:
		conn.touch(false)
		ping, err := msg.GetPingData()
		if err != nil {
			return
		}
		pong, err := protocol.NewPongMessage(format, ping.ID, msg.Timestamp)
		if err != nil {
			return
		}
		s.send(conn, pong)

	default:
		conn.touch(false)
	}
}

func (s *Server) storeFrame(clientID string, format protocol.Format, fd *protocol.FrameData) {
	if len(fd.Image) == 0 {
		return
	}

	frame := Frame{
		ClientID:   clientID,
		Data:       fd.Image,
		MimeType:   fd.MimeType,
		Quality:    fd.Quality,
		Width:      fd.Width,
		Height:     fd.Height,
		Seq:        fd.Seq,
		ReceivedAt: time.Now(),
		Size:       len(fd.Image),
	}
	if fd.CapturedAt > 0 {
		frame.CapturedAt = time.UnixMilli(fd.CapturedAt)
	}

	s.latest.Store(&frame)
	s.framesReceived.Add(1)
	s.bytesReceived.Add(uint64(frame.Size))
	metrics.RecordIngestFrame(string(format))

	s.mu.RLock()
	callbacks := s.onFrame
	s.mu.RUnlock()
	for _, cb := range callbacks {
		cb(frame)
	}
}

func (s *Server) reply(conn *Conn, format protocol.Format, text string) {
	msg, err := protocol.NewResponseMessage(format, text)
	if err != nil {
		return
	}
	s.send(conn, msg)
}

func (s *Server) send(conn *Conn, msg *protocol.Message) {
	if err := conn.Send(msg); err != nil {
		s.logger.Debug("write error", "client_id", conn.ID, "error", err)
		return
	}
	s.messagesSent.Add(1)
}

// StreamCount returns the number of connected streamers.
func (s *Server) StreamCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

// Stats contains ingest statistics
type Stats struct {
	StreamCount      int    `json:"stream_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	BytesReceived    uint64 `json:"bytes_received"`
	LatestSeq        uint64 `json:"latest_seq"`
}

// GetStats returns ingest statistics
func (s *Server) GetStats() Stats {
	st := Stats{
		StreamCount:      s.StreamCount(),
		MessagesReceived: s.messagesReceived.Load(),
		MessagesSent:     s.messagesSent.Load(),
		FramesReceived:   s.framesReceived.Load(),
		BytesReceived:    s.bytesReceived.Load(),
	}
	if f := s.latest.Load(); f != nil {
		st.LatestSeq = f.Seq
	}
	return st
}

// StreamInfo describes a connected streamer
type StreamInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Frames    uint64    `json:"frames"`
}

// GetStreamInfos returns info about all connected streamers
func (s *Server) GetStreamInfos() []StreamInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]StreamInfo, 0, len(s.streams))
	for _, c := range s.streams {
		c.mu.Lock()
		infos = append(infos, StreamInfo{
			ID:        c.ID,
			Connected: c.Connected,
			LastSeen:  c.lastSeen,
			Frames:    c.frames,
		})
		c.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers stream inspection routes
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	streams := api.Group("/streams")

	streams.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"streams": s.GetStreamInfos(),
			"count":   s.StreamCount(),
		})
	})

	streams.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.GetStats())
	})

	// Latest frame as a plain image
	streams.Get("/latest", func(c *fiber.Ctx) error {
		f, ok := s.Latest()
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no frame received yet"})
		}
		c.Set(fiber.HeaderContentType, f.MimeType)
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.Send(f.Data)
	})
}
