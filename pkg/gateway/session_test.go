package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zwave-js/zwave-js-server-go/pkg/driver"
	"github.com/zwave-js/zwave-js-server-go/pkg/transport"
	"github.com/zwave-js/zwave-js-server-go/pkg/version"
	"github.com/zwave-js/zwave-js-server-go/pkg/wire"
)

// fakeConn records outbound frames and probes in memory.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	pings  int
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ConnID() string { return c.id }

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321}
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrConnClosed
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrConnClosed
	}
	c.pings++
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) frame(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[i]
}

func (c *fakeConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// fakeDriver is a minimal driver with a scripted network state.
type fakeDriver struct {
	mu       sync.Mutex
	fns      []func(driver.Event)
	state    any
	stateErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{state: map[string]any{"nodes": []any{}}}
}

func (d *fakeDriver) HomeID() uint32  { return 0xDEADBEEF }
func (d *fakeDriver) Version() string { return "12.0.0-test" }

func (d *fakeDriver) NetworkState(context.Context) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.stateErr
}

func (d *fakeDriver) OnEvent(fn func(driver.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fns = append(d.fns, fn)
}

func (d *fakeDriver) emit(ev driver.Event) {
	d.mu.Lock()
	fns := append([]func(driver.Event){}, d.fns...)
	d.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func echoHandlers() HandlerSet {
	echo := driver.HandlerFunc(func(_ context.Context, action string, cmd *wire.CommandEnvelope) (any, error) {
		return map[string]any{"action": action}, nil
	})
	return HandlerSet{Driver: echo, Controller: echo, Node: echo}
}

func newTestSession(conn Conn, drv driver.Driver, handlers HandlerSet) *Session {
	return newSession(conn, drv, handlers, nil, zerolog.Nop(), nil, nil)
}

func commandFrame(messageID, command string, fields map[string]any) []byte {
	obj := map[string]any{"messageId": messageID, "command": command}
	for k, v := range fields {
		obj[k] = v
	}
	data, err := json.Marshal(obj)
	if err != nil {
		panic(err)
	}
	return data
}

func waitFrames(t *testing.T, conn *fakeConn, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return conn.frameCount() >= n },
		5*time.Second, 5*time.Millisecond)
}

func decodeResult(t *testing.T, data []byte) wire.ResultEnvelope {
	t.Helper()
	var res wire.ResultEnvelope
	require.NoError(t, json.Unmarshal(data, &res))
	require.Equal(t, wire.TypeResult, res.Type)
	return res
}

func TestSessionDispatchSuccess(t *testing.T) {
	conn := newFakeConn("s1")
	sess := newTestSession(conn, newFakeDriver(), echoHandlers())

	sess.OnMessage(commandFrame("m1", "node.get_value", nil))
	waitFrames(t, conn, 1)

	res := decodeResult(t, conn.frame(0))
	require.Equal(t, "m1", res.MessageID)
	require.True(t, res.Success)
	require.Equal(t, map[string]any{"action": "get_value"}, res.Result)
}

func TestSessionUnknownCommand(t *testing.T) {
	for _, command := range []string{"bogus", "thermostat.set", "node."} {
		t.Run(command, func(t *testing.T) {
			conn := newFakeConn("s1")
			sess := newTestSession(conn, newFakeDriver(), echoHandlers())

			sess.OnMessage(commandFrame("m1", command, nil))
			waitFrames(t, conn, 1)

			res := decodeResult(t, conn.frame(0))
			require.False(t, res.Success)
			require.Equal(t, wire.ErrorCodeUnknownCommand, res.ErrorCode)
			require.Equal(t, command, res.Message)
			require.Nil(t, res.ZWaveErrorCode)
		})
	}
}

func TestSessionUnboundGroupIsUnknownCommand(t *testing.T) {
	conn := newFakeConn("s1")
	sess := newTestSession(conn, newFakeDriver(), HandlerSet{})

	sess.OnMessage(commandFrame("m1", "node.ping", nil))
	waitFrames(t, conn, 1)

	res := decodeResult(t, conn.frame(0))
	require.Equal(t, wire.ErrorCodeUnknownCommand, res.ErrorCode)
}

func TestSessionErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      wire.ErrorCode
		zwaveCode *int
	}{
		{
			name: "protocol error keeps its code",
			err:  wire.NewProtocolError("inclusionAlreadyActive", "busy"),
			code: "inclusionAlreadyActive",
		},
		{
			name:      "driver error passes code through",
			err:       driver.NewZWaveError(driver.CodeNodeNotFound, "node 9 not found"),
			code:      wire.ErrorCodeZWaveError,
			zwaveCode: func() *int { c := driver.CodeNodeNotFound; return &c }(),
		},
		{
			name: "unclassified error is opaque",
			err:  errors.New("database on fire"),
			code: wire.ErrorCodeUnknownError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			failing := driver.HandlerFunc(func(context.Context, string, *wire.CommandEnvelope) (any, error) {
				return nil, tc.err
			})
			conn := newFakeConn("s1")
			sess := newTestSession(conn, newFakeDriver(), HandlerSet{Node: failing})

			sess.OnMessage(commandFrame("m1", "node.ping", nil))
			waitFrames(t, conn, 1)

			res := decodeResult(t, conn.frame(0))
			require.False(t, res.Success)
			require.Equal(t, tc.code, res.ErrorCode)
			if tc.zwaveCode != nil {
				require.NotNil(t, res.ZWaveErrorCode)
				require.Equal(t, *tc.zwaveCode, *res.ZWaveErrorCode)
				require.Equal(t, "node 9 not found", res.ZWaveErrorMessage)
			} else {
				require.Nil(t, res.ZWaveErrorCode)
			}
			if tc.code == wire.ErrorCodeUnknownError {
				// Internal detail never reaches the wire.
				require.NotContains(t, string(conn.frame(0)), "database on fire")
			}
		})
	}
}

func TestSessionPanicYieldsUnknownError(t *testing.T) {
	panicking := driver.HandlerFunc(func(context.Context, string, *wire.CommandEnvelope) (any, error) {
		panic("boom")
	})
	conn := newFakeConn("s1")
	sess := newTestSession(conn, newFakeDriver(), HandlerSet{Node: panicking})

	sess.OnMessage(commandFrame("m1", "node.ping", nil))
	waitFrames(t, conn, 1)

	res := decodeResult(t, conn.frame(0))
	require.Equal(t, wire.ErrorCodeUnknownError, res.ErrorCode)
	require.True(t, conn.Connected())
}

func TestSessionUnmarshalablePayloadYieldsUnknownError(t *testing.T) {
	bad := driver.HandlerFunc(func(context.Context, string, *wire.CommandEnvelope) (any, error) {
		return map[string]any{"ch": make(chan int)}, nil
	})
	conn := newFakeConn("s1")
	sess := newTestSession(conn, newFakeDriver(), HandlerSet{Node: bad})

	sess.OnMessage(commandFrame("m1", "node.ping", nil))
	waitFrames(t, conn, 1)

	res := decodeResult(t, conn.frame(0))
	require.False(t, res.Success)
	require.Equal(t, wire.ErrorCodeUnknownError, res.ErrorCode)
}

func TestSessionMalformedFrameClosesConnection(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", "{"},
		{"not an object", `[1,2,3]`},
		{"missing messageId", `{"command":"node.ping"}`},
		{"missing command", `{"messageId":"m1"}`},
		{"numeric messageId", `{"messageId":7,"command":"node.ping"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn := newFakeConn("s1")
			sess := newTestSession(conn, newFakeDriver(), echoHandlers())

			sess.OnMessage([]byte(tc.frame))

			require.False(t, conn.Connected())
			require.Zero(t, conn.frameCount(), "no result may be sent for an uncorrelatable frame")
		})
	}
}

func TestSessionStartListening(t *testing.T) {
	drv := newFakeDriver()
	drv.state = map[string]any{"nodes": []any{map[string]any{"nodeId": 2}}}
	conn := newFakeConn("s1")
	sess := newTestSession(conn, drv, echoHandlers())

	// Events before the handshake are dropped.
	sess.SendEvent(driver.Event{Source: wire.SourceNode, Name: "value updated"})
	require.Zero(t, conn.frameCount())
	require.Equal(t, StateConnected, sess.State())

	sess.OnMessage(commandFrame("m1", wire.CommandStartListening, nil))
	waitFrames(t, conn, 1)

	res := decodeResult(t, conn.frame(0))
	require.True(t, res.Success)
	payload, ok := res.Result.(map[string]any)
	require.True(t, ok)
	require.Contains(t, payload, "state")
	require.Equal(t, StateListening, sess.State())

	// Events after the handshake go out.
	sess.SendEvent(driver.Event{Source: wire.SourceNode, Name: "value updated", Fields: map[string]any{"nodeId": 2}})
	waitFrames(t, conn, 2)

	var env wire.EventEnvelope
	require.NoError(t, json.Unmarshal(conn.frame(1), &env))
	require.Equal(t, wire.TypeEvent, env.Type)
	require.Equal(t, "value updated", env.Event.Name)
	require.Equal(t, wire.SourceNode, env.Event.Source)
	require.Equal(t, map[string]any{"nodeId": float64(2)}, env.Event.Fields)
}

func TestSessionStartListeningIdempotent(t *testing.T) {
	conn := newFakeConn("s1")
	sess := newTestSession(conn, newFakeDriver(), echoHandlers())

	sess.OnMessage(commandFrame("m1", wire.CommandStartListening, nil))
	waitFrames(t, conn, 1)
	sess.OnMessage(commandFrame("m2", wire.CommandStartListening, nil))
	waitFrames(t, conn, 2)

	require.Equal(t, StateListening, sess.State())
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		res := decodeResult(t, conn.frame(i))
		require.True(t, res.Success)
		seen[res.MessageID] = true
	}
	require.Equal(t, map[string]bool{"m1": true, "m2": true}, seen)
}

func TestSessionStartListeningDriverFailure(t *testing.T) {
	drv := newFakeDriver()
	drv.stateErr = driver.NewZWaveError(driver.CodeTimeout, "serial port timeout")
	conn := newFakeConn("s1")
	sess := newTestSession(conn, drv, echoHandlers())

	sess.OnMessage(commandFrame("m1", wire.CommandStartListening, nil))
	waitFrames(t, conn, 1)

	res := decodeResult(t, conn.frame(0))
	require.Equal(t, wire.ErrorCodeZWaveError, res.ErrorCode)
	require.Equal(t, StateConnected, sess.State(), "failed handshake must not switch to listening")
}

func TestSessionSetAPISchema(t *testing.T) {
	conn := newFakeConn("s1")
	sess := newTestSession(conn, newFakeDriver(), echoHandlers())
	require.Equal(t, version.MaxSchema, sess.Schema())

	sess.OnMessage(commandFrame("m1", wire.CommandSetAPISchema, map[string]any{"schemaVersion": version.MinSchema}))
	waitFrames(t, conn, 1)
	require.True(t, decodeResult(t, conn.frame(0)).Success)
	require.Equal(t, version.MinSchema, sess.Schema())

	sess.OnMessage(commandFrame("m2", wire.CommandSetAPISchema, map[string]any{"schemaVersion": version.MaxSchema + 1}))
	waitFrames(t, conn, 2)
	res := decodeResult(t, conn.frame(1))
	require.Equal(t, wire.ErrorCodeSchemaIncompatible, res.ErrorCode)
	require.Equal(t, version.MinSchema, sess.Schema(), "rejected request must not change the pinned schema")

	sess.OnMessage(commandFrame("m3", wire.CommandSetAPISchema, nil))
	waitFrames(t, conn, 3)
	require.Equal(t, wire.ErrorCodeSchemaIncompatible, decodeResult(t, conn.frame(2)).ErrorCode)
}

func TestSessionLiveness(t *testing.T) {
	conn := newFakeConn("s1")
	sess := newTestSession(conn, newFakeDriver(), echoHandlers())

	// First round probes.
	require.True(t, sess.CheckAlive())
	require.Equal(t, 1, conn.pingCount())

	// Acknowledged in time: the next round probes again.
	sess.OnPong()
	require.True(t, sess.CheckAlive())
	require.Equal(t, 2, conn.pingCount())

	// Not acknowledged: one missed probe is fatal.
	require.False(t, sess.CheckAlive())
	require.False(t, conn.Connected())
}

func TestSessionConcurrentDispatch(t *testing.T) {
	release := make(chan struct{})
	slow := driver.HandlerFunc(func(_ context.Context, action string, cmd *wire.CommandEnvelope) (any, error) {
		if action == "slow" {
			<-release
		}
		return nil, nil
	})
	conn := newFakeConn("s1")
	sess := newTestSession(conn, newFakeDriver(), HandlerSet{Node: slow})

	sess.OnMessage(commandFrame("m-slow", "node.slow", nil))
	sess.OnMessage(commandFrame("m-fast", "node.fast", nil))

	// The fast command completes while the slow one is still suspended.
	waitFrames(t, conn, 1)
	require.Equal(t, "m-fast", decodeResult(t, conn.frame(0)).MessageID)

	close(release)
	waitFrames(t, conn, 2)
	require.Equal(t, "m-slow", decodeResult(t, conn.frame(1)).MessageID)
}

func TestSessionManyConcurrentCommands(t *testing.T) {
	conn := newFakeConn("s1")
	sess := newTestSession(conn, newFakeDriver(), echoHandlers())

	const n = 50
	for i := 0; i < n; i++ {
		sess.OnMessage(commandFrame(fmt.Sprintf("m%d", i), "node.ping", nil))
	}
	waitFrames(t, conn, n)

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		res := decodeResult(t, conn.frame(i))
		require.False(t, seen[res.MessageID], "duplicate result for %s", res.MessageID)
		seen[res.MessageID] = true
	}
	require.Len(t, seen, n)
}
