package billingsync

// Field is a key/value pair attached to a log line, such as event_id or uid.
type Field struct {
	Key   string
	Value interface{}
}

// Logger receives the dispatcher's and receiver's structured log output.
// The zerolog adapter in logger/zerolog is the production implementation.
type Logger interface {
	// Debug is used for raw event bodies and acknowledgement timings.
	Debug(msg string, fields ...Field)

	// Info is used for processed and unhandled events.
	Info(msg string, fields ...Field)

	// Warn is used for events that could not be applied because a lookup missed.
	Warn(msg string, fields ...Field)

	// Error is used for failed external calls.
	Error(msg string, fields ...Field)
}

var _ Logger = (*NoopLogger)(nil)

// NoopLogger discards everything. It is the default when Config.Logger is nil.
type NoopLogger struct{}

// Debug discards the message.
func (*NoopLogger) Debug(string, ...Field) {}

// Info discards the message.
func (*NoopLogger) Info(string, ...Field) {}

// Warn discards the message.
func (*NoopLogger) Warn(string, ...Field) {}

// Error discards the message.
func (*NoopLogger) Error(string, ...Field) {}
