package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	messages chan []byte
	pongs    chan struct{}
	closed   chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		messages: make(chan []byte, 16),
		pongs:    make(chan struct{}, 16),
		closed:   make(chan error, 1),
	}
}

func (h *recordingHandler) OnMessage(data []byte) { h.messages <- data }
func (h *recordingHandler) OnPong()               { h.pongs <- struct{}{} }
func (h *recordingHandler) OnClose(err error)     { h.closed <- err }

// testPair establishes a real websocket between a server-side and a
// client-side Conn.
func testPair(t *testing.T) (server, client *Conn, serverH, clientH *recordingHandler) {
	t.Helper()

	serverH = newRecordingHandler()
	clientH = newRecordingHandler()

	upgrader := websocket.Upgrader{}
	accepted := make(chan *Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		c := NewConn(ws)
		c.SetHandler(serverH)
		c.Start()
		accepted <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, url, clientH)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted")
	}
	t.Cleanup(func() { server.Close() })

	return server, client, serverH, clientH
}

func TestConnSendBothDirections(t *testing.T) {
	server, client, serverH, clientH := testPair(t)

	require.NoError(t, server.Send([]byte(`{"type":"version"}`)))
	select {
	case msg := <-clientH.messages:
		require.JSONEq(t, `{"type":"version"}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("client never received frame")
	}

	require.NoError(t, client.Send([]byte(`{"messageId":"m1","command":"start_listening"}`)))
	select {
	case msg := <-serverH.messages:
		require.Contains(t, string(msg), "start_listening")
	case <-time.After(5 * time.Second):
		t.Fatal("server never received frame")
	}
}

func TestConnPingDeliversPong(t *testing.T) {
	server, _, serverH, _ := testPair(t)

	// The peer's websocket stack acknowledges pings automatically.
	require.NoError(t, server.Ping())

	select {
	case <-serverH.pongs:
	case <-time.After(5 * time.Second):
		t.Fatal("pong never delivered")
	}
}

func TestConnCloseNotifiesPeer(t *testing.T) {
	server, client, serverH, clientH := testPair(t)

	require.True(t, server.Connected())
	require.NoError(t, server.Close())
	require.False(t, server.Connected())

	// Local side observes a clean close, peer observes the close frame.
	select {
	case err := <-serverH.closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("local close never reported")
	}
	select {
	case err := <-clientH.closed:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("peer close never reported")
	}

	require.ErrorIs(t, server.Send([]byte("x")), ErrConnClosed)
	require.ErrorIs(t, server.Ping(), ErrConnClosed)
	require.False(t, client.Connected())

	// Close is idempotent.
	require.NoError(t, server.Close())
}

func TestConnIDsAreUnique(t *testing.T) {
	server, client, _, _ := testPair(t)
	require.NotEmpty(t, server.ConnID())
	require.NotEmpty(t, client.ConnID())
	require.NotEqual(t, server.ConnID(), client.ConnID())
}
