package chathub

import (
	"context"
	"log"
	"roomchat/backend/internal/config"
	"roomchat/backend/internal/models"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// eventTimeout bounds the storage work done for one inbound event.
const eventTimeout = 10 * time.Second

// WebSocketClient implements Client over a gorilla websocket connection.
// Each queued frame is written as its own text message.
type WebSocketClient struct {
	ConnID  string
	Conn    *websocket.Conn
	Hub     *ManagerService
	Session *Session

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewWebSocketClient wraps an upgraded connection with a fresh connection id.
func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn) *WebSocketClient {
	return &WebSocketClient{
		ConnID: uuid.NewString(),
		Conn:   conn,
		Hub:    hub,
		send:   make(chan []byte, config.SendBufferSize),
	}
}

func (c *WebSocketClient) GetConnID() string { return c.ConnID }

func (c *WebSocketClient) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Run starts the pumps. Session must be set first.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send queue; writePump flushes it and closes the socket.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Reject writes a single auth-error frame and closes the socket with a
// policy-violation code. It is used instead of Run for refused connections.
func (c *WebSocketClient) Reject(message string) {
	defer c.Conn.Close()

	frame, err := models.EncodeFrame(models.EventAuthError, models.ErrorPayload{Message: message})
	if err != nil {
		log.Printf("ERROR: Failed to encode auth error for %s: %v", c.ConnID, err)
		return
	}

	c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
	if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return
	}
	closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
	c.Conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(config.WriteWait))
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Disconnect(c.Session)
		c.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.FrameLimit())
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WARNING: Read error on connection %s: %v", c.ConnID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ctx, cancel := context.WithTimeout(c.Hub.Context(), eventTimeout)
		c.Hub.HandleEvent(ctx, c.Session, message)
		cancel()
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("WARNING: Write error on connection %s: %v", c.ConnID, err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
