package gateway

import "github.com/zwave-js/zwave-js-server-go/pkg/driver"

// Group names the handler groups commands are routed to. The set is closed:
// a command with any other prefix is an unknown command, no matter what
// handlers are registered.
type Group string

const (
	GroupDriver     Group = "driver"
	GroupController Group = "controller"
	GroupNode       Group = "node"
)

// HandlerSet binds one handler to each command group. A nil handler makes
// every command of that group an unknown command; handlers cannot be added
// or replaced after the gateway starts.
type HandlerSet struct {
	Driver     driver.Handler
	Controller driver.Handler
	Node       driver.Handler
}

// Lookup resolves a group prefix to its handler. ok is false for prefixes
// outside the closed group set and for groups with no handler bound.
func (h HandlerSet) Lookup(group string) (driver.Handler, bool) {
	var handler driver.Handler
	switch Group(group) {
	case GroupDriver:
		handler = h.Driver
	case GroupController:
		handler = h.Controller
	case GroupNode:
		handler = h.Node
	default:
		return nil, false
	}
	if handler == nil {
		return nil, false
	}
	return handler, true
}
