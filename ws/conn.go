package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/deskhq/deskchat/config"
)

// Conn is a duplex message stream to the chat gateway
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens connections; swapped for a fake in tests
type Dialer interface {
	Dial(ctx context.Context, urlStr string) (Conn, error)
}

// GorillaDialer dials websocket connections using gorilla/websocket
type GorillaDialer struct {
	cfg config.WebSocketConfig
}

// NewDialer creates a websocket dialer
func NewDialer(cfg config.WebSocketConfig) *GorillaDialer {
	return &GorillaDialer{cfg: cfg}
}

// Dial opens a connection to urlStr
func (d *GorillaDialer) Dial(ctx context.Context, urlStr string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, urlStr, nil)
	if err != nil {
		return nil, err
	}
	return newWsConn(conn, d.cfg), nil
}

// wsConn wraps a gorilla connection with a single writer loop that also
// drives heartbeat pings.
type wsConn struct {
	conn       *websocket.Conn
	writeChan  chan []byte
	writeMu    sync.Mutex
	closeOnce  sync.Once
	closed     bool
	closeChan  chan struct{}
	heartbeat  time.Duration
	pongWait   time.Duration
	writeWait  time.Duration
	maxMsgSize int64
}

func newWsConn(conn *websocket.Conn, cfg config.WebSocketConfig) *wsConn {
	c := &wsConn{
		conn:       conn,
		writeChan:  make(chan []byte, cfg.WriteChannelSize),
		closeChan:  make(chan struct{}),
		heartbeat:  cfg.Heartbeat,
		pongWait:   cfg.PongWait,
		writeWait:  cfg.WriteWait,
		maxMsgSize: cfg.MaxMessageSize,
	}

	conn.SetReadLimit(cfg.MaxMessageSize)

	// Pong extends the read deadline
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	go c.writeLoop()

	return c
}

// writeLoop handles all writes to the connection (single writer pattern)
func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.writeChan:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("write message error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("ping error: %v", err)
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// ReadMessage reads a message from the connection
func (c *wsConn) ReadMessage() ([]byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	_, message, err := c.conn.ReadMessage()
	return message, err
}

// WriteMessage queues a message to be written
func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.writeChan <- data:
		return nil
	default:
		// Channel full, connection is a slow consumer
		return ErrWriteChannelFull
	}
}

// Close closes the connection
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		close(c.writeChan)
		c.writeMu.Unlock()

		close(c.closeChan)
	})
	return nil
}
