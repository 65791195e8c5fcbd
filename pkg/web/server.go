// Package web serves the backend's viewer and inspection endpoints.
//
// Frames accepted by the ingest server are relayed untouched: as an MJPEG
// stream on /video_feed and as binary websocket messages on /ws/frames.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-framepace/pkg/hub"
	"github.com/teslashibe/go-framepace/pkg/ingest"
)

// DefaultStatusInterval is how often /ws/status viewers receive stats.
const DefaultStatusInterval = time.Second

// Stats is the payload of /api/stats and /ws/status.
type Stats struct {
	Ingest        ingest.Stats `json:"ingest"`
	FrameViewers  int          `json:"frame_viewers"`
	StatusViewers int          `json:"status_viewers"`
	Uptime        string       `json:"uptime"`
}

// Server is the backend HTTP server
type Server struct {
	app     *fiber.App
	addr    string
	logger  *slog.Logger
	started time.Time

	ingest *ingest.Server

	// Hubs for websocket and MJPEG fan-out
	frameHub  *hub.Hub
	statusHub *hub.Hub

	statusInterval time.Duration
}

// NewServer creates the backend server. metricsHandler is mounted on
// /metrics when non-nil.
func NewServer(addr string, in *ingest.Server, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:           addr,
		logger:         logger.With("component", "web"),
		started:        time.Now(),
		ingest:         in,
		frameHub:       hub.New("frames", logger),
		statusHub:      hub.New("status", logger),
		statusInterval: DefaultStatusInterval,
	}

	app := fiber.New(fiber.Config{
		AppName:               "framepace backend",
		DisableStartupMessage: true,
		BodyLimit:             8 * 1024 * 1024,
	})

	app.Use(recover.New())

	// CORS for local development
	app.Use(cors.New())

	// Streamer endpoint
	in.RegisterRoutes(app)

	app.Get("/", s.handleIndex)
	app.Get("/health", s.handleHealth)
	app.Get("/video_feed", s.handleVideoFeed)
	if metricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}

	// API routes
	api := app.Group("/api")
	api.Get("/stats", s.handleStats)
	in.RegisterAPIRoutes(api)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/frames", websocket.New(s.handleFramesWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	in.OnFrame(func(f ingest.Frame) {
		s.frameHub.BroadcastBinary(f.Data)
	})

	s.app = app
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve starts the hubs and serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.frameHub.Run(ctx)
	go s.statusHub.Run(ctx)
	go s.publishStatus(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("backend listening", "addr", ln.Addr().String())
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// publishStatus pushes stats to /ws/status viewers.
func (s *Server) publishStatus(ctx context.Context) {
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.BroadcastJSON(s.stats()); err != nil {
				s.logger.Warn("status broadcast failed", "error", err)
			}
		}
	}
}

func (s *Server) stats() Stats {
	return Stats{
		Ingest:        s.ingest.GetStats(),
		FrameViewers:  s.frameHub.ClientCount(),
		StatusViewers: s.statusHub.ClientCount(),
		Uptime:        time.Since(s.started).Round(time.Second).String(),
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}
