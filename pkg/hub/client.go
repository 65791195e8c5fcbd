package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds what viewers may send; they only answer pings
	maxMessageSize = 4 * 1024

	// sendBuffer is the per-viewer queue before it counts as slow
	sendBuffer = 32
)

// Client is a websocket viewer attached to a hub
type Client struct {
	sub  *Subscription
	conn *websocket.Conn
	done chan struct{}
}

// NewClient creates a new client and subscribes it to the hub
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		sub:  hub.Subscribe(sendBuffer),
		conn: conn,
		done: make(chan struct{}),
	}
}

// Run starts the client's read and write pumps and blocks until both end.
// Call it from the websocket handler.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
	<-c.done
}

// Close unsubscribes a client whose pumps were never started.
func (c *Client) Close() {
	c.sub.Close()
}

// readPump reads until the viewer disconnects, handling pongs
func (c *Client) readPump() {
	defer c.sub.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine that writes to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.sub.C():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the subscription - send close frame
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			wsType := websocket.TextMessage
			if message.Type == BinaryMessage {
				wsType = websocket.BinaryMessage
			}

			if err := c.conn.WriteMessage(wsType, message.Data); err != nil {
				c.sub.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.sub.Close()
				return
			}
		}
	}
}
