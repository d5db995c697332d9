package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 16 * 1024
)

// Client is one authenticated realtime connection
type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Username string
	Conn     *websocket.Conn
	Send     chan []byte
	Done     chan struct{}

	closeOnce sync.Once
}

// NewClient wraps conn. conn may be nil for in-process clients (tests, fakes)
// that only read from Send.
func NewClient(conn *websocket.Conn, userID uuid.UUID, username string, buffer int) *Client {
	return &Client{
		ID:       uuid.New(),
		UserID:   userID,
		Username: username,
		Conn:     conn,
		Send:     make(chan []byte, buffer),
		Done:     make(chan struct{}),
	}
}

// Close is safe to call more than once. Send is never closed so concurrent
// fan-out cannot panic; WritePump exits on Done instead.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// IsConnected checks if client is still connected
func (c *Client) IsConnected() bool {
	select {
	case <-c.Done:
		return false
	default:
		return true
	}
}

// enqueue never blocks. A full buffer means the consumer is too slow to keep
// ordering guarantees, so the connection is closed and the client must
// re-join and reload history.
func (c *Client) enqueue(frame []byte) error {
	if !c.IsConnected() {
		return ErrClientClosed
	}
	select {
	case c.Send <- frame:
		return nil
	default:
		c.Close()
		return ErrSendBufferFull
	}
}

// ReadPump delivers each inbound text frame to handle, in order, until the
// connection fails. handle runs on the pump goroutine.
func (c *Client) ReadPump(log zerolog.Logger, handle func(data []byte)) {
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("user_id", c.UserID.String()).Msg("unexpected close")
			}
			return
		}
		handle(data)
	}
}

// WritePump drains Send to the socket and keeps the connection alive with pings
func (c *Client) WritePump(log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("user_id", c.UserID.String()).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("user_id", c.UserID.String()).Msg("ping failed")
				return
			}

		case <-c.Done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
