package driver

import (
	"context"

	"github.com/zwave-js/zwave-js-server-go/pkg/wire"
)

// Event is one notification emitted by the driver subsystem: a lifecycle
// change of the driver, the controller, or a node.
type Event struct {
	// Source is the subsystem the event originated from.
	Source wire.EventSource

	// Name is the event name, e.g. "node added" or "value updated".
	Name string

	// Fields is the event-specific payload, placed on the wire next to
	// source and event name.
	Fields map[string]any
}

// Driver is the upstream device-control subsystem the gateway fronts.
// Implementations must be safe for concurrent use.
type Driver interface {
	// HomeID returns the Z-Wave network's home ID.
	HomeID() uint32

	// Version returns the driver version string.
	Version() string

	// NetworkState returns a snapshot of the full current network state.
	// It is used only for the start_listening handshake reply.
	NetworkState(ctx context.Context) (any, error)

	// OnEvent registers a callback invoked for every driver notification.
	// Callbacks stay registered for the lifetime of the driver; the
	// gateway drops its reference on shutdown instead of unsubscribing.
	OnEvent(fn func(Event))
}

// Handler executes the commands of one handler group. The action is the part
// of the command string after the group prefix; the envelope carries the
// command-specific fields.
//
// Handle may suspend for as long as the underlying network operation takes.
// The session dispatches handler calls asynchronously, so a slow command
// never stalls other commands or sessions.
type Handler interface {
	Handle(ctx context.Context, action string, cmd *wire.CommandEnvelope) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, action string, cmd *wire.CommandEnvelope) (any, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, action string, cmd *wire.CommandEnvelope) (any, error) {
	return f(ctx, action, cmd)
}
