package log

// MultiLogger fans each record out to several loggers, e.g. a trace file
// plus an in-memory capture in tests.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that forwards to all given loggers.
// Nil entries are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	ml := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			ml.loggers = append(ml.loggers, l)
		}
	}
	return ml
}

// Log forwards the record to every logger.
func (ml *MultiLogger) Log(event Event) {
	for _, l := range ml.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
