package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zwave-js/zwave-js-server-go/pkg/driver"
	"github.com/zwave-js/zwave-js-server-go/pkg/log"
	"github.com/zwave-js/zwave-js-server-go/pkg/metrics"
)

// DefaultPingInterval is the liveness sweep period.
const DefaultPingInterval = 30 * time.Second

// cleanupDebounce coalesces removal passes when several sessions close in a
// burst.
const cleanupDebounce = 250 * time.Millisecond

// ErrTrackerShutdown indicates a registration attempt after Shutdown.
var ErrTrackerShutdown = errors.New("session tracker is shut down")

// SessionTracker owns the live session set of one driver. It registers new
// connections, fans driver events out to listening sessions, and runs the
// periodic liveness sweep. The sweep goroutine and the event forwarder are
// created lazily when the first session arrives and live until Shutdown.
type SessionTracker struct {
	drv          driver.Driver
	handlers     HandlerSet
	logger       zerolog.Logger
	trace        log.Logger
	metrics      *metrics.Metrics
	pingInterval time.Duration

	mu           sync.Mutex
	sessions     map[*Session]struct{}
	sweepStop    chan struct{}
	forwarder    *EventForwarder
	cleanupTimer *time.Timer
	shutdown     bool
}

// NewSessionTracker creates a tracker for one driver. pingInterval <= 0
// selects DefaultPingInterval; trace may be nil.
func NewSessionTracker(drv driver.Driver, handlers HandlerSet, pingInterval time.Duration, logger zerolog.Logger, trace log.Logger, m *metrics.Metrics) *SessionTracker {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	if trace == nil {
		trace = log.NoopLogger{}
	}
	return &SessionTracker{
		drv:          drv,
		handlers:     handlers,
		logger:       logger,
		trace:        trace,
		metrics:      m,
		pingInterval: pingInterval,
		sessions:     make(map[*Session]struct{}),
	}
}

// Add registers a new connection. The version envelope is sent before the
// session is exposed to the sweep and the forwarder, so it is always the
// first frame the client sees. The caller starts the connection's read loop
// after Add returns.
func (t *SessionTracker) Add(conn Conn) (*Session, error) {
	sess := newSession(conn, t.drv, t.handlers, t.sessionClosed, t.logger, t.trace, t.metrics)

	if err := sess.sendVersion(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown {
		return nil, ErrTrackerShutdown
	}

	t.sessions[sess] = struct{}{}
	t.metrics.SetActiveSessions(len(t.sessions))

	if t.sweepStop == nil {
		t.sweepStop = make(chan struct{})
		go t.sweepLoop(t.sweepStop)
	}
	if t.forwarder == nil {
		t.forwarder = NewEventForwarder(t.drv, t.fanOut)
	}

	t.logger.Info().Str("session", sess.ID()).Int("sessions", len(t.sessions)).Msg("session registered")
	return sess, nil
}

// Count returns the number of tracked sessions.
func (t *SessionTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// snapshot returns the current session set without holding the lock during
// use.
func (t *SessionTracker) snapshot() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, 0, len(t.sessions))
	for s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// fanOut delivers one driver event to every tracked session. Sessions that
// are not listening drop it locally.
func (t *SessionTracker) fanOut(ev driver.Event) {
	for _, s := range t.snapshot() {
		s.SendEvent(ev)
	}
}

// sweepLoop probes all sessions once per interval until stopped.
func (t *SessionTracker) sweepLoop(stop chan struct{}) {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep runs one liveness round over the session set. Sessions it kills are
// removed by the same debounced pass that handles out-of-band closes, so the
// transport's own close notification arriving later is harmless.
func (t *SessionTracker) sweep() {
	for _, s := range t.snapshot() {
		if !s.CheckAlive() {
			t.metrics.LivenessDisconnect()
			t.sessionClosed(s)
		}
	}
}

// sessionClosed is the per-session removal hook. Removal is debounced: a
// burst of disconnects runs one cleanup pass.
func (t *SessionTracker) sessionClosed(*Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown || t.cleanupTimer != nil {
		return
	}
	t.cleanupTimer = time.AfterFunc(cleanupDebounce, t.cleanup)
}

// cleanup removes every closed session from the set.
func (t *SessionTracker) cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanupTimer = nil

	removed := 0
	for s := range t.sessions {
		if s.State() == StateClosed {
			delete(t.sessions, s)
			removed++
		}
	}
	if removed > 0 {
		t.metrics.SetActiveSessions(len(t.sessions))
		t.logger.Debug().Int("removed", removed).Int("sessions", len(t.sessions)).Msg("cleaned up closed sessions")
	}
}

// Shutdown stops the sweep and the forwarder and closes every session.
// Idempotent; Add fails afterwards.
func (t *SessionTracker) Shutdown() {
	t.mu.Lock()
	if t.shutdown {
		t.mu.Unlock()
		return
	}
	t.shutdown = true

	stop := t.sweepStop
	forwarder := t.forwarder
	timer := t.cleanupTimer
	t.cleanupTimer = nil

	sessions := make([]*Session, 0, len(t.sessions))
	for s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.sessions = make(map[*Session]struct{})
	t.metrics.SetActiveSessions(0)
	t.mu.Unlock()

	if forwarder != nil {
		forwarder.Stop()
	}
	if stop != nil {
		close(stop)
	}
	if timer != nil {
		timer.Stop()
	}
	for _, s := range sessions {
		s.Close()
	}
	t.logger.Info().Int("sessions", len(sessions)).Msg("session tracker shut down")
}
