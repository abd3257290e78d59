package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Transport defaults.
const (
	// DefaultMaxMessageSize is the maximum inbound frame size.
	DefaultMaxMessageSize = 256 * 1024

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second
)

// ErrConnClosed indicates a send on a connection that is no longer live.
var ErrConnClosed = errors.New("connection closed")

// Handler receives connection events. All callbacks are invoked from the
// connection's read goroutine, one at a time, in arrival order.
type Handler interface {
	// OnMessage is called for every inbound frame.
	OnMessage(data []byte)

	// OnPong is called when the peer acknowledges a liveness probe.
	OnPong()

	// OnClose is called exactly once when the connection is torn down,
	// whether by the peer, by a transport error, or by Close.
	OnClose(err error)
}

// Conn is one websocket connection. It is created by the listener for
// inbound connections and by Dial for outbound ones.
type Conn struct {
	ws      *websocket.Conn
	handler Handler
	connID  string

	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewConn wraps an established websocket connection. The handler must be
// attached with SetHandler before Start; the split lets the server create
// the session for a connection it has already accepted.
func NewConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:           ws,
		connID:       uuid.New().String(),
		writeTimeout: DefaultWriteTimeout,
	}
	ws.SetReadLimit(DefaultMaxMessageSize)
	return c
}

// SetHandler attaches the event handler. Must be called before Start.
func (c *Conn) SetHandler(handler Handler) {
	c.handler = handler
}

// ConnID returns the unique connection identifier.
func (c *Conn) ConnID() string {
	return c.connID
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// Connected reports whether the connection is still live.
func (c *Conn) Connected() bool {
	return !c.closed.Load()
}

// Start registers the pong handler and starts the read loop.
func (c *Conn) Start() {
	c.ws.SetPongHandler(func(string) error {
		c.handler.OnPong()
		return nil
	})
	go c.readLoop()
}

// Send writes one frame. Concurrent senders are serialized; a send on a
// closed connection returns ErrConnClosed.
func (c *Conn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	return nil
}

// Ping sends a liveness probe. The peer's acknowledgment arrives via
// Handler.OnPong.
func (c *Conn) Ping() error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close tears the connection down. Idempotent. A best-effort close frame is
// written before the underlying socket is closed; the read loop delivers
// OnClose.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

// readLoop reads frames until the connection dies, then reports the close.
func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			wasOpen := !c.closed.Swap(true)
			c.ws.Close()
			if wasOpen {
				c.handler.OnClose(err)
			} else {
				// Locally initiated close: the error is the expected
				// "use of closed connection"; report a clean close.
				c.handler.OnClose(nil)
			}
			return
		}
		c.handler.OnMessage(data)
	}
}
