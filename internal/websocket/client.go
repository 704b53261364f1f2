package websocket

import (
	"encoding/json"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024
)

// Client is one live wall viewer. The feed is read-only: viewers may only
// send application-level pings.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string

	// simple token-bucket rate limiter for inbound frames
	tokens       int
	maxTokens    int
	refillPeriod time.Duration
	lastRefill   time.Time
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, remote string) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		remote:       remote,
		tokens:       5,
		maxTokens:    5,
		refillPeriod: time.Second,
		lastRefill:   time.Now(),
	}
}

// ReadPump consumes inbound frames until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("remote", c.remote).Msg("websocket error")
			}
			break
		}

		if !c.take(time.Now()) {
			c.sendError("rate_limited")
			continue
		}
		c.handleMessage(message)
	}
}

// take refills the bucket and spends one token.
func (c *Client) take(now time.Time) bool {
	elapsed := now.Sub(c.lastRefill)
	if elapsed >= c.refillPeriod {
		c.tokens += int(elapsed / c.refillPeriod)
		if c.tokens > c.maxTokens {
			c.tokens = c.maxTokens
		}
		c.lastRefill = now
	}
	if c.tokens <= 0 {
		return false
	}
	c.tokens--
	return true
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var wsMsg models.WSMessage
	if err := json.Unmarshal(data, &wsMsg); err != nil {
		c.sendError("Invalid message format")
		return
	}

	switch wsMsg.Event {
	case models.EventPing:
		c.sendEvent(models.WSMessage{Event: models.EventPong})
	default:
		c.sendError("The wall feed is read-only")
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(message string) {
	c.sendEvent(models.WSMessage{
		Event: models.EventError,
		Payload: models.WSErrorPayload{
			Message: message,
		},
	})
}

func (c *Client) sendEvent(event models.WSMessage) {
	data, _ := json.Marshal(event)
	select {
	case c.send <- data:
	default:
	}
}
