package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zwave-js/zwave-js-server-go/pkg/driver"
	"github.com/zwave-js/zwave-js-server-go/pkg/log"
	"github.com/zwave-js/zwave-js-server-go/pkg/metrics"
	"github.com/zwave-js/zwave-js-server-go/pkg/transport"
)

// Options configures a Gateway.
type Options struct {
	// Listen is the TCP listen address, e.g. ":3000".
	Listen string

	// PingInterval is the liveness sweep period. Zero selects
	// DefaultPingInterval.
	PingInterval time.Duration

	// Logger receives operational log output.
	Logger zerolog.Logger

	// Trace optionally records the protocol event trace.
	Trace log.Logger

	// Metrics optionally collects prometheus instrumentation and enables
	// the /metrics endpoint.
	Metrics *metrics.Metrics
}

// Gateway is the websocket front of one driver: it accepts client
// connections at the root path, hands each to the session tracker, and
// serves the health and metrics endpoints alongside.
type Gateway struct {
	opts     Options
	tracker  *SessionTracker
	upgrader websocket.Upgrader

	listener net.Listener
	server   *http.Server
}

// New creates a gateway for one driver and handler set.
func New(drv driver.Driver, handlers HandlerSet, opts Options) *Gateway {
	g := &Gateway{
		opts:    opts,
		tracker: NewSessionTracker(drv, handlers, opts.PingInterval, opts.Logger, opts.Trace, opts.Metrics),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are local tooling and home-automation hubs; there
			// is no browser origin to police.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	router := chi.NewRouter()
	router.Get("/", g.handleWebsocket)
	router.Get("/health", g.handleHealth)
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	g.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return g
}

// Start binds the listen address and begins accepting connections. It
// returns once the listener is bound; serving continues in the background.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.opts.Listen)
	if err != nil {
		return fmt.Errorf("binding %s: %w", g.opts.Listen, err)
	}
	g.listener = ln

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.opts.Logger.Error().Err(err).Msg("serve failed")
		}
	}()

	g.opts.Logger.Info().Str("addr", ln.Addr().String()).Msg("gateway listening")
	return nil
}

// Addr returns the bound listen address. Valid after Start.
func (g *Gateway) Addr() net.Addr {
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Tracker exposes the session tracker, mainly for tests and status surfaces.
func (g *Gateway) Tracker() *SessionTracker {
	return g.tracker
}

// Destroy stops accepting connections, closes every session, and waits for
// the server to drain, bounded by ctx.
func (g *Gateway) Destroy(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return g.server.Shutdown(ctx)
	})
	group.Go(func() error {
		g.tracker.Shutdown()
		return nil
	})

	return group.Wait()
}

// handleWebsocket upgrades one client connection and hands it to the
// tracker. The version envelope goes out before the read loop starts.
func (g *Gateway) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.opts.Logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	conn := transport.NewConn(ws)
	sess, err := g.tracker.Add(conn)
	if err != nil {
		g.opts.Logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("session registration failed")
		conn.Close()
		return
	}

	conn.SetHandler(sess)
	conn.Start()
}

// handleHealth reports liveness and the current session count.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`+"\n", g.tracker.Count())
}
