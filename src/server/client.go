package server

import (
	"encoding/json"
	"time"

	"market-feed/src/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // inbound messages are tiny subscribe commands
	sendBufferSize = 256
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

type Client struct {
	id     string
	server *FeedServer
	conn   *websocket.Conn
	send   chan interface{}
	done   chan struct{}
}

func newClient(server *FeedServer, conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		server: server,
		conn:   conn,
		// Buffered channel to prevent blocking the hub's broadcast
		send: make(chan interface{}, sendBufferSize),
		done: make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// ID implements interfaces.IConnection.
func (c *Client) ID() string {
	return c.id
}

// -----------------------------------------------------------------------------

// Send queues one frame without blocking. Returns false when the buffer is
// full or the client is gone; the hub skips this client and the connection
// is reaped on its own disconnect signal. The send channel is never closed,
// so a late broadcast from a stale subscriber snapshot cannot panic.
func (c *Client) Send(frame interface{}) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.server.hub.RemoveConnection(c)
		c.conn.Close()
		c.server.Logger.Info("Client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

// -----------------------------------------------------------------------------

// handleMessage validates and acts on one inbound payload. A bad message
// earns an error frame; the connection stays up.
func (c *Client) handleMessage(message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.Send(models.MErrorFrame{Type: models.FrameError, Message: "invalid JSON payload"})
		return
	}

	if cmd.Type != "subscribe" {
		c.Send(models.MErrorFrame{Type: models.FrameError, Message: "unsupported message type: " + cmd.Type})
		return
	}

	if err := c.server.hub.Subscribe(cmd.Symbol, cmd.Interval, c); err != nil {
		c.Send(models.MErrorFrame{Type: models.FrameError, Message: err.Error()})
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Write JSON message
			if err := c.conn.WriteJSON(message); err != nil {
				c.server.Logger.Info("Write error: %v", err)
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
