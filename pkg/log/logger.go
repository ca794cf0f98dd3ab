package log

// Logger receives protocol log events.
// Pass nil or NoopLogger to disable protocol logging.
type Logger interface {
	// Log records an event. Implementations must be safe for concurrent use
	// and must not block: the client calls Log from its read loop.
	Log(event Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// FilteredLogger forwards the events matching a Filter.
type FilteredLogger struct {
	next   Logger
	filter Filter
}

// NewFilteredLogger wraps next so it only sees events matching filter.
func NewFilteredLogger(next Logger, filter Filter) *FilteredLogger {
	return &FilteredLogger{next: next, filter: filter}
}

// Log forwards event if it matches.
func (l *FilteredLogger) Log(event Event) {
	if l.filter.Matches(event) {
		l.next.Log(event)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Logger = NoopLogger{}
	_ Logger = (*FilteredLogger)(nil)
)
