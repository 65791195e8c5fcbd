package ingest

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-framepace/pkg/capture"
	"github.com/teslashibe/go-framepace/pkg/protocol"
	"github.com/teslashibe/go-framepace/pkg/transport"
)

// startServer serves s on a random local port and returns its ws base URL.
func startServer(t *testing.T, s *Server) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	s.RegisterRoutes(app)
	s.RegisterAPIRoutes(app.Group("/api"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })
	return "ws://" + ln.Addr().String()
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) (int, *protocol.Message) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	wsType, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	format := protocol.FormatJSON
	if wsType == websocket.BinaryMessage {
		format = protocol.FormatMsgpack
	}
	msg, err := protocol.ParseMessage(format, data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	return wsType, msg
}

func write(t *testing.T, ws *websocket.Conn, msg *protocol.Message) {
	t.Helper()
	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	wsType := websocket.TextMessage
	if msg.Format().Binary() {
		wsType = websocket.BinaryMessage
	}
	if err := ws.WriteMessage(wsType, data); err != nil {
		t.Fatalf("Write error: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNetInIsEchoed(t *testing.T) {
	s := NewServer(nil)
	ws := dial(t, startServer(t, s)+"/streaming/cam-1")

	msg, _ := protocol.NewNoticeMessage(protocol.FormatJSON, protocol.TypeNetIn, protocol.NoticeConnected)
	write(t, ws, msg)

	wsType, resp := readMessage(t, ws)
	if wsType != websocket.TextMessage {
		t.Errorf("wsType = %d, want text", wsType)
	}
	if resp.Type != protocol.TypeResponse {
		t.Fatalf("Type = %s, want response", resp.Type)
	}
	notice, err := resp.GetNoticeData()
	if err != nil || notice.Data != protocol.NoticeConnected {
		t.Errorf("notice = %+v, %v", notice, err)
	}
}

func TestConnectedAnsweredOK(t *testing.T) {
	s := NewServer(nil)
	ws := dial(t, startServer(t, s)+"/streaming/cam-1")

	msg, _ := protocol.NewMessage(protocol.FormatMsgpack, protocol.TypeConnected, nil)
	write(t, ws, msg)

	wsType, resp := readMessage(t, ws)
	if wsType != websocket.BinaryMessage {
		t.Errorf("reply should use the binary format of the request")
	}
	notice, err := resp.GetNoticeData()
	if err != nil || notice.Data != protocol.NoticeOK {
		t.Errorf("notice = %+v, %v", notice, err)
	}
}

func TestFramesReplaceLatest(t *testing.T) {
	s := NewServer(nil)

	var mu sync.Mutex
	var seqs []uint64
	s.OnFrame(func(f Frame) {
		mu.Lock()
		seqs = append(seqs, f.Seq)
		mu.Unlock()
	})

	if _, ok := s.Latest(); ok {
		t.Fatal("Latest should be empty initially")
	}

	ws := dial(t, startServer(t, s)+"/streaming/cam-1")
	for seq := uint64(1); seq <= 3; seq++ {
		msg, _ := protocol.NewFrameMessage(protocol.FormatJSON, protocol.FrameData{
			Image:    []byte{0xff, 0xd8, byte(seq)},
			MimeType: "image/jpeg",
			Width:    320,
			Height:   240,
			Seq:      seq,
		})
		write(t, ws, msg)
	}

	waitFor(t, func() bool { return s.GetStats().FramesReceived == 3 })

	latest, ok := s.Latest()
	if !ok {
		t.Fatal("Latest should hold a frame")
	}
	if latest.Seq != 3 || latest.ClientID != "cam-1" || latest.Data[2] != 3 {
		t.Errorf("latest = %+v", latest)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Errorf("callback order = %v", seqs)
	}

	stats := s.GetStats()
	if stats.BytesReceived != 9 || stats.LatestSeq != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestEmptyFrameIgnored(t *testing.T) {
	s := NewServer(nil)
	ws := dial(t, startServer(t, s)+"/streaming/cam-1")

	msg, _ := protocol.NewFrameMessage(protocol.FormatJSON, protocol.FrameData{Seq: 1})
	write(t, ws, msg)
	ping, _ := protocol.NewPingMessage(protocol.FormatJSON, "p1")
	write(t, ws, ping)

	_, pong := readMessage(t, ws)
	if pong.Type != protocol.TypePong {
		t.Fatalf("Type = %s, want pong", pong.Type)
	}
	if _, ok := s.Latest(); ok {
		t.Error("empty frame should not replace the slot")
	}
}

func TestStreamLifecycle(t *testing.T) {
	s := NewServer(nil)
	base := startServer(t, s)

	ws := dial(t, base+"/streaming/cam-1")
	dial(t, base+"/streaming")

	waitFor(t, func() bool { return s.StreamCount() == 2 })

	var found bool
	for _, info := range s.GetStreamInfos() {
		if info.ID == "cam-1" {
			found = true
		} else if len(info.ID) != 36 {
			t.Errorf("generated id %q should be a UUID", info.ID)
		}
	}
	if !found {
		t.Error("cam-1 not listed")
	}

	ws.Close()
	waitFor(t, func() bool { return s.StreamCount() == 1 })
}

func TestLatestFrameEndpoint(t *testing.T) {
	s := NewServer(nil)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	s.RegisterAPIRoutes(app.Group("/api"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/streams/latest", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Status = %d, want 404", resp.StatusCode)
	}

	s.storeFrame("cam-1", protocol.FormatJSON, &protocol.FrameData{Image: []byte("jpeg"), MimeType: "image/jpeg", Seq: 4})

	resp, err = app.Test(httptest.NewRequest("GET", "/api/streams/latest", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "jpeg" {
		t.Errorf("body = %q", body)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/api/streams/stats", nil))
	if resp.StatusCode != 200 {
		t.Errorf("stats Status = %d", resp.StatusCode)
	}
}

func TestPlainRequestNeedsUpgrade(t *testing.T) {
	s := NewServer(nil)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	s.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/streaming/cam-1", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Status = %d, want 426", resp.StatusCode)
	}
}

func TestTransportClientEndToEnd(t *testing.T) {
	s := NewServer(nil)
	frames := make(chan Frame, 4)
	s.OnFrame(func(f Frame) { frames <- f })

	for _, format := range []protocol.Format{protocol.FormatJSON, protocol.FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			cfg := transport.DefaultConfig()
			cfg.URL = startServer(t, s)
			cfg.ClientID = "e2e-" + string(format)
			cfg.Format = format

			client, err := transport.NewClient(cfg, nil)
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			defer client.Close()
			if err := client.Connect(context.Background()); err != nil {
				t.Fatalf("Connect: %v", err)
			}

			payload := capture.FramePayload{
				Data:       []byte{0xff, 0xd8, 0xff, 0xe0},
				MimeType:   "image/jpeg",
				Quality:    0.9,
				Width:      320,
				Height:     240,
				Seq:        42,
				CapturedAt: time.Now(),
			}
			if err := client.SendFrame(payload); err != nil {
				t.Fatalf("SendFrame: %v", err)
			}

			select {
			case f := <-frames:
				if f.ClientID != cfg.ClientID || f.Seq != 42 || len(f.Data) != 4 {
					t.Errorf("frame = %+v", f)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("frame not received")
			}

			// The handshake notice was echoed back.
			waitFor(t, func() bool { return client.GetStats().MessagesReceived >= 1 })
		})
	}
}
