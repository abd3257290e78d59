package log

// Logger is the interface the gateway uses to record protocol events.
// Pass nil or NoopLogger to disable tracing.
type Logger interface {
	// Log records a protocol event. Implementations must be safe for
	// concurrent use and should not block the calling session.
	Log(event Event)
}

// NoopLogger discards all events. Usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}
