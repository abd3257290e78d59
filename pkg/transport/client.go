package transport

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// Dial connects to a gateway and returns a started connection. Used by the
// REPL client and by tests; the server side wraps accepted connections with
// NewConn directly.
func Dial(ctx context.Context, url string, handler Handler) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c := NewConn(ws)
	c.SetHandler(handler)
	c.Start()
	return c, nil
}
