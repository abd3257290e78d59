package gateway

import (
	"sync/atomic"

	"github.com/zwave-js/zwave-js-server-go/pkg/driver"
)

// EventForwarder is the single bridge between the driver's event stream and
// the session set. The driver offers no unsubscribe, so the callback stays
// registered for the driver's lifetime; Stop turns it into a no-op.
type EventForwarder struct {
	stopped atomic.Bool
}

// NewEventForwarder registers sink with the driver and returns the handle
// that can later disarm it. Exactly one forwarder exists per tracker,
// created when the first session registers.
func NewEventForwarder(drv driver.Driver, sink func(driver.Event)) *EventForwarder {
	f := &EventForwarder{}
	drv.OnEvent(func(ev driver.Event) {
		if f.stopped.Load() {
			return
		}
		sink(ev)
	})
	return f
}

// Stop disarms the forwarder. Events delivered by the driver after Stop are
// dropped. Idempotent.
func (f *EventForwarder) Stop() {
	f.stopped.Store(true)
}
