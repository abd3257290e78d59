package gateway

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zwave-js/zwave-js-server-go/pkg/driver"
	"github.com/zwave-js/zwave-js-server-go/pkg/log"
	"github.com/zwave-js/zwave-js-server-go/pkg/metrics"
	"github.com/zwave-js/zwave-js-server-go/pkg/version"
	"github.com/zwave-js/zwave-js-server-go/pkg/wire"
)

// Conn is the connection surface a session drives. *transport.Conn satisfies
// it; tests substitute an in-memory fake.
type Conn interface {
	ConnID() string
	RemoteAddr() net.Addr
	Send(data []byte) error
	Ping() error
	Close() error
	Connected() bool
}

// State is a session's position in its lifecycle.
type State int

const (
	// StateConnected: handshake done, commands accepted, no events yet.
	StateConnected State = iota

	// StateListening: the client completed start_listening and receives
	// every subsequent driver event.
	StateListening

	// StateClosed: the connection is gone. Terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session owns one client connection: command dispatch, event delivery, and
// liveness. It implements transport.Handler; the transport's read goroutine
// feeds it frames and the tracker's sweep goroutine probes it. Handler
// execution happens on per-command goroutines.
type Session struct {
	conn     Conn
	drv      driver.Driver
	handlers HandlerSet
	logger   zerolog.Logger
	trace    log.Logger
	metrics  *metrics.Metrics

	// onClosed is the tracker's removal hook, invoked once from OnClose.
	onClosed func(*Session)

	mu           sync.Mutex
	state        State
	awaitingPong bool
	schema       int
}

func newSession(conn Conn, drv driver.Driver, handlers HandlerSet, onClosed func(*Session), logger zerolog.Logger, trace log.Logger, m *metrics.Metrics) *Session {
	if trace == nil {
		trace = log.NoopLogger{}
	}
	return &Session{
		conn:     conn,
		drv:      drv,
		handlers: handlers,
		logger:   logger.With().Str("session", conn.ConnID()).Logger(),
		trace:    trace,
		metrics:  m,
		onClosed: onClosed,
		state:    StateConnected,
		schema:   version.MaxSchema,
	}
}

// ID returns the session's connection identifier.
func (s *Session) ID() string {
	return s.conn.ConnID()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Receiving reports whether driver events are delivered to this session.
func (s *Session) Receiving() bool {
	return s.State() == StateListening
}

// Schema returns the API schema version negotiated for this session.
func (s *Session) Schema() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema
}

// sendVersion writes the post-connect version envelope. Called by the
// tracker before the read loop starts, so it always precedes any result.
func (s *Session) sendVersion() error {
	data, err := wire.EncodeVersion(&wire.VersionEnvelope{
		DriverVersion:    s.drv.Version(),
		ServerVersion:    version.Server,
		HomeID:           s.drv.HomeID(),
		MinSchemaVersion: version.MinSchema,
		MaxSchemaVersion: version.MaxSchema,
	})
	if err != nil {
		return err
	}
	if err := s.conn.Send(data); err != nil {
		return err
	}
	s.trace.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.ID(),
		Direction:  log.DirectionOut,
		Kind:       log.KindVersion,
		RemoteAddr: s.remoteAddr(),
	})
	return nil
}

// OnMessage implements transport.Handler. Decoding happens on the read
// goroutine; everything after decode runs on its own goroutine so a slow
// handler never blocks the next frame.
func (s *Session) OnMessage(data []byte) {
	env, err := wire.DecodeCommand(data)
	if err != nil {
		// No messageId to correlate an error result to. Drop the
		// connection; a client this broken cannot be answered.
		s.logger.Warn().Err(err).Msg("undecodable frame, closing connection")
		s.trace.Log(log.Event{
			Timestamp: time.Now(),
			SessionID: s.ID(),
			Direction: log.DirectionIn,
			Kind:      log.KindError,
			Detail:    err.Error(),
		})
		s.conn.Close()
		return
	}

	s.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.ID(),
		Direction: log.DirectionIn,
		Kind:      log.KindCommand,
		MessageID: env.MessageID,
		Command:   env.Command,
	})

	go s.dispatch(env)
}

// dispatch executes one command and sends exactly one result for it.
func (s *Session) dispatch(env *wire.CommandEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("command", env.Command).Msg("handler panicked")
			s.sendResult(env, wire.ErrorResult(env.MessageID, wire.ErrorCodeUnknownError, ""))
		}
	}()

	switch env.Command {
	case wire.CommandStartListening:
		s.startListening(env)
		return
	case wire.CommandSetAPISchema:
		s.setAPISchema(env)
		return
	}

	group, action, ok := env.Group()
	if !ok {
		s.sendResult(env, wire.ErrorResult(env.MessageID, wire.ErrorCodeUnknownCommand, env.Command))
		return
	}
	handler, ok := s.handlers.Lookup(group)
	if !ok {
		s.sendResult(env, wire.ErrorResult(env.MessageID, wire.ErrorCodeUnknownCommand, env.Command))
		return
	}

	payload, err := handler.Handle(context.Background(), action, env)
	if err != nil {
		s.sendResult(env, s.classify(env, err))
		return
	}
	s.sendResult(env, wire.SuccessResult(env.MessageID, payload))
}

// startListening replies with a full network state snapshot and switches the
// session into event delivery. Events emitted after the snapshot was taken
// are delivered; repeating the command just returns a fresh snapshot.
func (s *Session) startListening(env *wire.CommandEnvelope) {
	snapshot, err := s.drv.NetworkState(context.Background())
	if err != nil {
		s.sendResult(env, s.classify(env, err))
		return
	}

	s.mu.Lock()
	if s.state == StateConnected {
		s.state = StateListening
	}
	state := s.state
	s.mu.Unlock()

	s.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.ID(),
		Kind:      log.KindState,
		State:     state.String(),
	})

	s.sendResult(env, wire.SuccessResult(env.MessageID, map[string]any{"state": snapshot}))
}

// setAPISchema pins the session to a specific API schema version.
func (s *Session) setAPISchema(env *wire.CommandEnvelope) {
	var requested int
	present, err := env.Field("schemaVersion", &requested)
	if err != nil || !present {
		s.sendResult(env, wire.ErrorResult(env.MessageID, wire.ErrorCodeSchemaIncompatible, "schemaVersion missing or not a number"))
		return
	}
	if !version.SchemaSupported(requested) {
		s.sendResult(env, wire.ErrorResult(env.MessageID, wire.ErrorCodeSchemaIncompatible, ""))
		return
	}

	s.mu.Lock()
	s.schema = requested
	s.mu.Unlock()

	s.sendResult(env, wire.SuccessResult(env.MessageID, nil))
}

// classify maps a handler error to its failure envelope. Classified errors
// keep their code; driver errors pass the driver's own code and message
// through; everything else is an unknownError and gets logged, since the
// client only sees the opaque code.
func (s *Session) classify(env *wire.CommandEnvelope, err error) *wire.ResultEnvelope {
	var perr *wire.ProtocolError
	if errors.As(err, &perr) {
		return wire.ErrorResult(env.MessageID, perr.Code, perr.Message)
	}

	var zerr *driver.ZWaveError
	if errors.As(err, &zerr) {
		return wire.DriverErrorResult(env.MessageID, zerr.Code, zerr.Message)
	}

	s.logger.Error().Err(err).Str("command", env.Command).Msg("unclassified handler error")
	return wire.ErrorResult(env.MessageID, wire.ErrorCodeUnknownError, "")
}

// sendResult encodes and writes one result envelope. Send failures are
// logged, not propagated: if the connection died the close path is already
// running.
func (s *Session) sendResult(env *wire.CommandEnvelope, res *wire.ResultEnvelope) {
	data, err := wire.EncodeResult(res)
	if err != nil {
		// Handler produced an unmarshalable payload. The client still
		// gets its one result.
		s.logger.Error().Err(err).Str("command", env.Command).Msg("result not encodable")
		res = wire.ErrorResult(env.MessageID, wire.ErrorCodeUnknownError, "")
		data, _ = wire.EncodeResult(res)
	}

	if res.Success {
		s.metrics.Command("success")
	} else {
		s.metrics.Command(string(res.ErrorCode))
	}
	s.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.ID(),
		Direction: log.DirectionOut,
		Kind:      log.KindResult,
		MessageID: res.MessageID,
		Command:   env.Command,
		ErrorCode: string(res.ErrorCode),
	})

	if err := s.conn.Send(data); err != nil {
		s.logger.Debug().Err(err).Msg("result send failed")
	}
}

// SendEvent delivers one driver event if the session is listening. Delivery
// is fire-and-forget.
func (s *Session) SendEvent(ev driver.Event) {
	if !s.Receiving() {
		return
	}

	data, err := wire.EncodeEvent(wire.NewEventEnvelope(wire.Event{
		Source: ev.Source,
		Name:   ev.Name,
		Fields: ev.Fields,
	}))
	if err != nil {
		s.logger.Error().Err(err).Str("event", ev.Name).Msg("event not encodable")
		return
	}

	s.trace.Log(log.Event{
		Timestamp:   time.Now(),
		SessionID:   s.ID(),
		Direction:   log.DirectionOut,
		Kind:        log.KindEvent,
		EventName:   ev.Name,
		EventSource: string(ev.Source),
	})

	if err := s.conn.Send(data); err != nil {
		s.logger.Debug().Err(err).Str("event", ev.Name).Msg("event send failed")
	}
	s.metrics.EventForwarded()
}

// CheckAlive runs one liveness round. If the previous probe is still
// unacknowledged the session is force-closed and CheckAlive returns false;
// otherwise a new probe goes out.
func (s *Session) CheckAlive() bool {
	s.mu.Lock()
	if s.awaitingPong {
		s.state = StateClosed
		s.mu.Unlock()
		s.logger.Info().Msg("liveness probe unanswered, disconnecting")
		s.trace.Log(log.Event{
			Timestamp: time.Now(),
			SessionID: s.ID(),
			Kind:      log.KindControl,
			Detail:    "probe unanswered",
		})
		s.conn.Close()
		return false
	}
	s.awaitingPong = true
	s.mu.Unlock()

	if err := s.conn.Ping(); err != nil {
		// Leave the flag set: the next sweep closes the session if the
		// transport does not tear it down first.
		s.logger.Debug().Err(err).Msg("liveness probe send failed")
	}
	return true
}

// OnPong implements transport.Handler.
func (s *Session) OnPong() {
	s.mu.Lock()
	s.awaitingPong = false
	s.mu.Unlock()
}

// OnClose implements transport.Handler. The transport guarantees exactly one
// call; the session transitions to its terminal state and unregisters.
func (s *Session) OnClose(err error) {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	detail := ""
	if err != nil {
		detail = err.Error()
	}
	s.logger.Info().Str("reason", detail).Msg("session closed")

	s.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.ID(),
		Kind:      log.KindState,
		State:     StateClosed.String(),
		Detail:    detail,
	})

	if s.onClosed != nil {
		s.onClosed(s)
	}
}

// Close tears the session's connection down. The transport's close path
// delivers OnClose and unregisters the session.
func (s *Session) Close() {
	s.conn.Close()
}

func (s *Session) remoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
