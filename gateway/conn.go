package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskhub/identity"
)

// Config holds per-connection tunables.
type Config struct {
	// WriteTimeout bounds each websocket write.
	WriteTimeout time.Duration

	// PingInterval for keepalive pings (0 = disabled).
	PingInterval time.Duration

	// PongTimeout is how long to wait for a pong before the read
	// loop gives up on the connection.
	PongTimeout time.Duration

	// MaxMessageSize limits inbound message size.
	MaxMessageSize int64

	// SendBufferSize is the outbound queue depth per connection.
	// A full queue drops messages rather than blocking the sender.
	SendBufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    75 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBufferSize: 64,
	}
}

// conn is one websocket connection bound to a verified identity. It
// satisfies session.Conn so the registry and dispatcher can address it.
type conn struct {
	id       string
	identity *identity.Identity
	ws       *websocket.Conn
	config   Config

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newConn(id string, ident *identity.Identity, ws *websocket.Conn, cfg Config) *conn {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = DefaultConfig().SendBufferSize
	}
	ws.SetReadLimit(cfg.MaxMessageSize)

	return &conn{
		id:       id,
		identity: ident,
		ws:       ws,
		config:   cfg,
		send:     make(chan []byte, cfg.SendBufferSize),
		done:     make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *conn) ID() string { return c.id }

// Send queues data for delivery. Delivery is fire-and-forget: a full
// queue or a closed connection drops the message.
func (c *conn) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errConnClosed
	}
	c.mu.Unlock()

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSendBufferFull
	}
}

// close shuts the connection down once; safe to call from either pump.
func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.ws.Close()
}

// writeLoop drains the send queue onto the wire and keeps the
// connection alive with pings.
func (c *conn) writeLoop() {
	ticker := c.pingTicker()
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		case data := <-c.send:
			if err := c.writeMessage(data); err != nil {
				return
			}
		}
	}
}

func (c *conn) pingTicker() *time.Ticker {
	if c.config.PingInterval > 0 {
		return time.NewTicker(c.config.PingInterval)
	}
	ticker := time.NewTicker(time.Hour)
	ticker.Stop()
	return ticker
}

func (c *conn) writePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}

func (c *conn) writeMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	if c.config.WriteTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
