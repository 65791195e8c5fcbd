package web

import (
	"bufio"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-framepace/pkg/hub"
)

// mjpegBoundary separates parts of the /video_feed response.
const mjpegBoundary = "frame"

// mjpegQueue is the per-viewer frame queue for /video_feed.
const mjpegQueue = 4

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>framepace</title></head>
<body>
<img src="/video_feed" alt="live stream">
</body>
</html>
`

// handleIndex serves a page showing the live stream
func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(indexHTML)
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStats returns ingest and viewer statistics
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.stats())
}

// handleVideoFeed streams frames as multipart/x-mixed-replace, starting
// with the newest frame already received.
func (s *Server) handleVideoFeed(c *fiber.Ctx) error {
	sub := s.frameHub.Subscribe(mjpegQueue)

	var first []byte
	if f, ok := s.ingest.Latest(); ok {
		first = f.Data
	}

	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store")
	c.Set(fiber.HeaderConnection, "close")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		if first != nil {
			if err := writePart(w, first); err != nil {
				return
			}
		}
		for msg := range sub.C() {
			if err := writePart(w, msg.Data); err != nil {
				return
			}
		}
	})
	return nil
}

// writePart writes one JPEG part and flushes it to the viewer.
func writePart(w *bufio.Writer, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

// handleFramesWS relays frames to a websocket viewer as binary messages
func (s *Server) handleFramesWS(c *websocket.Conn) {
	hub.NewClient(s.frameHub, c).Run()
}

// handleStatusWS sends the current stats, then periodic updates
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)
	if !s.writeSnapshot(c) {
		client.Close()
		return
	}
	client.Run()
}

type jsonWriter interface {
	WriteJSON(v interface{}) error
}

// writeSnapshot sends the current stats; false means the viewer is gone.
func (s *Server) writeSnapshot(w jsonWriter) bool {
	if err := w.WriteJSON(s.stats()); err != nil {
		s.logger.Debug("status write error", "error", err)
		return false
	}
	return true
}
